package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/maidastach/guardian/internal/command"
	"github.com/maidastach/guardian/internal/gdrive"
	"github.com/maidastach/guardian/internal/ledger"
	"github.com/maidastach/guardian/internal/mount"
	"github.com/maidastach/guardian/internal/scheduler"
	"github.com/maidastach/guardian/internal/supervisor"
	"github.com/maidastach/guardian/internal/uploader"
)

// stateDirPermissions keeps the ledger private to the service user.
const stateDirPermissions = 0o700

// pipeline is the ledger, remote, and reconciler a command works through.
type pipeline struct {
	runner     *command.Runner
	store      *ledger.Store
	remote     *gdrive.Client
	reconciler *uploader.Reconciler
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

func newRunner(cc *CLIContext) *command.Runner {
	return command.NewRunner(command.Config{
		ElevateWith: cc.Cfg.Command.ElevateWith,
		Shell:       cc.Cfg.Command.Shell,
	}, cc.Logger)
}

// openLedger opens the SQLite ledger under the state directory, creating
// the directory on first use.
func openLedger(ctx context.Context, cc *CLIContext) (*ledger.Store, error) {
	if err := os.MkdirAll(cc.Cfg.Paths.StateDir, stateDirPermissions); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	store, err := ledger.Open(ctx, cc.Cfg.LedgerPath(), cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	return store, nil
}

// newRemote builds the Google Drive client from the service account key.
func newRemote(ctx context.Context, cc *CLIContext) (*gdrive.Client, error) {
	creds := cc.Cfg.Drive.CredentialsFile
	if creds == "" {
		return nil, errors.New("drive.credentials_file is not set")
	}

	tokens, err := gdrive.ServiceAccountTokenSource(ctx, creds)
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(gdrive.Config{
		FolderName:     cc.Cfg.Drive.FolderName,
		FolderMimeType: cc.Cfg.Drive.FolderMimeType,
		RequestTimeout: cc.Cfg.Drive.RequestTimeout,
	}, nil, tokens, cc.Logger), nil
}

// openPipeline wires the ledger, the Drive remote, and the reconciler.
func openPipeline(ctx context.Context, cc *CLIContext) (*pipeline, error) {
	store, err := openLedger(ctx, cc)
	if err != nil {
		return nil, err
	}

	remote, err := newRemote(ctx, cc)
	if err != nil {
		store.Close()
		return nil, err
	}

	runner := newRunner(cc)

	rec := uploader.New(uploader.Config{
		UploadedDir:       cc.Cfg.Paths.Uploaded,
		DefaultMimeType:   cc.Cfg.Drive.DefaultMimeType,
		MissingFilePolicy: uploader.MissingFilePolicy(cc.Cfg.Drive.MissingFilePolicy),
		Location:          cc.Cfg.Location,
	}, store, remote, runner, cc.Logger)

	return &pipeline{runner: runner, store: store, remote: remote, reconciler: rec}, nil
}

func newMountController(cc *CLIContext, runner mount.Runner) *mount.Controller {
	return mount.NewController(cc.Cfg.Paths.Drive, cc.Cfg.Paths.Mount, runner, cc.Logger)
}

func newSupervisor(cc *CLIContext, runner supervisor.Launcher, mounter supervisor.Mounter) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Name:        cc.Cfg.Daemon.Name,
		Command:     cc.Cfg.Daemon.Command,
		StopTimeout: cc.Cfg.Daemon.StopTimeout,
	}, runner, mounter, cc.Logger)
}

func schedulerOptions(cc *CLIContext) scheduler.Options {
	return scheduler.Options{
		Heartbeat:       scheduler.Timing(cc.Cfg.Heartbeat),
		Cleanup:         scheduler.Timing(cc.Cfg.Cleanup),
		Upload:          scheduler.Timing(cc.Cfg.Upload),
		HeartbeatMarker: cc.Cfg.Paths.HeartbeatMarker,
		StoppedMarker:   cc.Cfg.Paths.StoppedMarker,
		Location:        cc.Cfg.Location,
	}
}
