// Package uploader moves stable recordings to remote storage and keeps the
// ledger in step: inline upload right after ingestion, a periodic sweep over
// every pending record, and cleanup of orphaned remote files.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/maidastach/guardian/internal/command"
	"github.com/maidastach/guardian/internal/failure"
	"github.com/maidastach/guardian/internal/gdrive"
	"github.com/maidastach/guardian/internal/ledger"
)

// RecordStore is the persistence the reconciler needs. Satisfied by *ledger.Store.
type RecordStore interface {
	Create(ctx context.Context, r *ledger.Record) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.Record, error)
	List(ctx context.Context, states ...ledger.State) ([]*ledger.Record, error)
	Update(ctx context.Context, r *ledger.Record) error
}

// RemoteStorage is the remote side. Satisfied by *gdrive.Client.
type RemoteStorage interface {
	UploadFile(ctx context.Context, path, mimeType string) (string, error)
	ListAllFiles(ctx context.Context) ([]gdrive.File, error)
	DeleteFile(ctx context.Context, id string) error
	EmptyTrash(ctx context.Context) error
	RootID(ctx context.Context) (string, error)
}

// CommandRunner runs the MIME probe. Satisfied by *command.Runner.
type CommandRunner interface {
	Execute(ctx context.Context, cmd string, opts command.Options) (*command.Handle, error)
}

// MissingFilePolicy decides what happens to a record whose local file is gone.
type MissingFilePolicy string

// Missing-file policies.
const (
	// PolicyMarkDeleted moves the record to the terminal deleted state.
	PolicyMarkDeleted MissingFilePolicy = "mark_deleted"
	// PolicyKeepPending logs the failure and leaves the record for the next sweep.
	PolicyKeepPending MissingFilePolicy = "keep_pending"
)

// Status is the result of one upload attempt.
type Status string

// Upload statuses.
const (
	StatusUploaded Status = "uploaded"
	StatusDeleted  Status = "deleted"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Outcome describes one record's upload attempt.
type Outcome struct {
	RecordID uuid.UUID `json:"record_id"`
	FileName string    `json:"file_name"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	RemoteID string    `json:"remote_id,omitempty"`
	Deleted  bool      `json:"deleted"`
}

// Config holds reconciler settings.
type Config struct {
	// UploadedDir receives local files after a successful upload. Empty
	// leaves files in place.
	UploadedDir       string
	DefaultMimeType   string
	MissingFilePolicy MissingFilePolicy
	// Location is the time zone for record timestamps. Nil means local time.
	Location *time.Location
}

// Reconciler drives records from pending to uploaded or deleted.
type Reconciler struct {
	cfg    Config
	store  RecordStore
	remote RemoteStorage
	runner CommandRunner
	logger *slog.Logger
	locks  *keyedMutex

	nowFunc func() time.Time
}

// New creates a Reconciler. runner may be nil, in which case every file gets
// the default MIME type.
func New(cfg Config, store RecordStore, remote RemoteStorage, runner CommandRunner, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MissingFilePolicy == "" {
		cfg.MissingFilePolicy = PolicyMarkDeleted
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Reconciler{
		cfg:     cfg,
		store:   store,
		remote:  remote,
		runner:  runner,
		logger:  logger,
		locks:   newKeyedMutex(),
		nowFunc: func() time.Time { return time.Now().In(loc) },
	}
}

// Ingest records a stable file and uploads it immediately. Only a failure to
// create the record is returned; upload failures stay on the record for the
// next sweep.
func (r *Reconciler) Ingest(ctx context.Context, path string) error {
	rec := ledger.NewRecord(normalizeName(filepath.Base(path)), path, r.nowFunc())

	r.logger.Info("file is stable and ready for processing", slog.String("path", path))

	if err := r.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("uploader: creating record for %s: %w", path, err)
	}

	out, err := r.UploadRecord(ctx, rec.ID)
	if err != nil {
		r.logger.Error("inline upload failed",
			slog.String("record_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)

		return nil
	}

	r.logger.Debug("inline upload finished",
		slog.String("record_id", rec.ID.String()),
		slog.String("status", string(out.Status)),
	)

	return nil
}

// UploadMissing attempts every pending record once, oldest first.
func (r *Reconciler) UploadMissing(ctx context.Context) ([]Outcome, error) {
	pending, err := r.store.List(ctx, ledger.StatePending)
	if err != nil {
		return nil, fmt.Errorf("uploader: listing pending records: %w", err)
	}

	if len(pending) == 0 {
		r.logger.Info("nothing to upload")
		return nil, nil
	}

	outcomes := make([]Outcome, 0, len(pending))

	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("uploader: sweep interrupted: %w", err)
		}

		r.logger.Info("uploading pending record",
			slog.Int("current", i+1),
			slog.Int("total", len(pending)),
			slog.String("file", rec.FileName),
		)

		out, err := r.UploadRecord(ctx, rec.ID)
		if err != nil {
			r.logger.Error("uploading record failed",
				slog.String("record_id", rec.ID.String()),
				slog.String("file", rec.FileName),
				slog.String("error", err.Error()),
			)

			out = Outcome{RecordID: rec.ID, FileName: rec.FileName, Status: StatusFailed, Message: err.Error()}
		}

		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}

// UploadRecord uploads one record. The record is re-read under its lock and
// skipped when it is no longer pending. The returned error covers ledger
// faults only; upload failures are reported in the Outcome and on the record.
func (r *Reconciler) UploadRecord(ctx context.Context, id uuid.UUID) (Outcome, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return Outcome{RecordID: id}, fmt.Errorf("uploader: loading record %s: %w", id, err)
	}

	out := Outcome{RecordID: rec.ID, FileName: rec.FileName}

	if rec.Terminal() {
		out.Status = StatusSkipped
		out.Message = "record is " + string(rec.State())

		return out, nil
	}

	remoteID, upErr := r.UploadOne(ctx, rec.FullPath)

	switch kind := failure.Classify(upErr); {
	case upErr == nil:
		if err := r.MarkUploaded(ctx, rec, remoteID); err != nil {
			return r.settle(out, err)
		}

		out.Status = StatusUploaded
		out.RemoteID = remoteID

	case kind == failure.KindCanceled:
		out.Status = StatusFailed
		out.Message = upErr.Error()

		return out, fmt.Errorf("uploader: uploading %s: %w", rec.FileName, upErr)

	case errors.Is(upErr, fs.ErrNotExist) && r.cfg.MissingFilePolicy == PolicyMarkDeleted:
		if err := r.MarkDeleted(ctx, rec, upErr); err != nil {
			return r.settle(out, err)
		}

		out.Status = StatusDeleted
		out.Deleted = true
		out.Message = upErr.Error()

	default:
		if err := r.SaveToLog(ctx, rec, upErr); err != nil {
			return r.settle(out, err)
		}

		out.Status = StatusFailed
		out.Message = upErr.Error()
	}

	return out, nil
}

// settle turns a lost race on the ledger row into a skipped outcome and
// passes every other error through.
func (r *Reconciler) settle(out Outcome, err error) (Outcome, error) {
	if errors.Is(err, ledger.ErrTerminal) || errors.Is(err, ledger.ErrConflict) {
		r.logger.Warn("record changed during upload, skipping",
			slog.String("record_id", out.RecordID.String()),
			slog.String("error", err.Error()),
		)

		out.Status = StatusSkipped
		out.Message = err.Error()

		return out, nil
	}

	out.Status = StatusFailed
	out.Message = err.Error()

	return out, err
}

// UploadOne uploads a file with no ledger record, such as a marker file.
func (r *Reconciler) UploadOne(ctx context.Context, path string) (string, error) {
	r.logger.Info("uploading file", slog.String("path", path))

	mimeType := r.detectMimeType(ctx, path)

	id, err := r.remote.UploadFile(ctx, path, mimeType)
	if err != nil {
		return "", err
	}

	return id, nil
}

// MarkUploaded records a successful upload and moves the local file into
// the uploaded directory. A failed move is logged and leaves the record
// uploaded.
func (r *Reconciler) MarkUploaded(ctx context.Context, rec *ledger.Record, remoteID string) error {
	if err := rec.UploadCompleted(remoteID, r.nowFunc()); err != nil {
		return err
	}

	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("uploader: saving upload of %s: %w", rec.FileName, err)
	}

	r.logger.Info("successfully uploaded",
		slog.String("file", rec.FileName),
		slog.String("remote_id", remoteID),
	)

	if r.cfg.UploadedDir != "" {
		dst := filepath.Join(r.cfg.UploadedDir, filepath.Base(rec.FullPath))
		if err := moveFile(rec.FullPath, dst); err != nil {
			r.logger.Error("moving uploaded file failed",
				slog.String("from", rec.FullPath),
				slog.String("to", dst),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// MarkDeleted moves the record to the deleted state with cause in its log.
func (r *Reconciler) MarkDeleted(ctx context.Context, rec *ledger.Record, cause error) error {
	if err := rec.Delete(cause.Error(), r.nowFunc()); err != nil {
		return err
	}

	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("uploader: saving deletion of %s: %w", rec.FileName, err)
	}

	r.logger.Warn("file does not exist, record deleted",
		slog.String("path", rec.FullPath),
		slog.String("record_id", rec.ID.String()),
	)

	return nil
}

// SaveToLog appends cause to the record's log as an error. The record stays
// pending.
func (r *Reconciler) SaveToLog(ctx context.Context, rec *ledger.Record, cause error) error {
	if err := rec.AddLog(cause.Error(), true, r.nowFunc()); err != nil {
		return err
	}

	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("uploader: saving log for %s: %w", rec.FileName, err)
	}

	r.logger.Error("upload failed, will retry on next sweep",
		slog.String("file", rec.FileName),
		slog.String("error", cause.Error()),
	)

	return nil
}

// moveFile renames src to dst, falling back to copy and remove when they are
// on different filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}
