// Package mount ensures the recording volume is mounted at its mount point.
package mount

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maidastach/guardian/internal/command"
)

// DefaultMountTable is the live kernel mount table on Linux.
const DefaultMountTable = "/proc/mounts"

// Runner is the subset of command.Runner the controller needs.
type Runner interface {
	Execute(ctx context.Context, cmd string, opts command.Options) (*command.Handle, error)
	RevokeElevation(ctx context.Context) (*command.Handle, error)
}

// Controller mounts a block device at a mount point using elevated commands.
type Controller struct {
	drive      string
	point      string
	mountTable string
	runner     Runner
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMountTable overrides the mount table path (tests).
func WithMountTable(path string) Option {
	return func(c *Controller) { c.mountTable = path }
}

// NewController creates a Controller for drive mounted at point.
func NewController(drive, point string, runner Runner, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		drive:      drive,
		point:      filepath.Clean(point),
		mountTable: DefaultMountTable,
		runner:     runner,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Drive returns the configured device path.
func (c *Controller) Drive() string { return c.drive }

// Point returns the configured mount point.
func (c *Controller) Point() string { return c.point }

// Mount creates the mount point and mounts the drive, skipping whatever is
// already in place. When nothing needs doing no command is run.
func (c *Controller) Mount(ctx context.Context) error {
	var steps []string

	if !dirExists(c.point) {
		steps = append(steps, "mkdir -p "+command.Quote(c.point))
	}

	mounted, err := c.IsMounted()
	if err != nil {
		return err
	}

	if !mounted {
		steps = append(steps, "mount "+command.Quote(c.drive)+" "+command.Quote(c.point))
	}

	if len(steps) == 0 {
		c.logger.Debug("drive already mounted",
			slog.String("drive", c.drive),
			slog.String("mount_point", c.point),
		)

		return nil
	}

	for _, step := range steps {
		if _, err := c.runner.Execute(ctx, step, command.Options{Elevated: true}); err != nil {
			c.revoke(ctx)
			return err
		}
	}

	c.revoke(ctx)

	c.logger.Info("drive mounted",
		slog.String("drive", c.drive),
		slog.String("mount_point", c.point),
	)

	return nil
}

// Unmount unmounts the mount point. The command is always issued, even when
// the mount table says nothing is mounted there.
func (c *Controller) Unmount(ctx context.Context) error {
	_, err := c.runner.Execute(ctx, "umount "+command.Quote(c.point), command.Options{Elevated: true})
	c.revoke(ctx)

	if err != nil {
		return err
	}

	c.logger.Info("drive unmounted", slog.String("mount_point", c.point))

	return nil
}

// IsMounted reports whether the drive is mounted at the mount point according
// to the live mount table. The table is read on every call.
func (c *Controller) IsMounted() (bool, error) {
	f, err := os.Open(c.mountTable)
	if err != nil {
		return false, fmt.Errorf("mount: reading mount table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		if unescape(fields[0]) == c.drive && filepath.Clean(unescape(fields[1])) == c.point {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("mount: scanning mount table: %w", err)
	}

	return false, nil
}

// revoke drops elevated credentials. A failure is logged and otherwise ignored
// so the outcome of the mount step itself is what the caller sees.
func (c *Controller) revoke(ctx context.Context) {
	if _, err := c.runner.RevokeElevation(ctx); err != nil {
		c.logger.Warn("revoking elevation failed", slog.String("error", err.Error()))
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// unescape decodes the octal escapes (\040 for space, \011 for tab, \012,
// \134) the kernel uses in mount table fields.
func unescape(field string) string {
	if !strings.Contains(field, `\`) {
		return field
	}

	var b strings.Builder

	for i := 0; i < len(field); i++ {
		if field[i] == '\\' && i+3 < len(field) {
			if n, err := strconv.ParseUint(field[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3

				continue
			}
		}

		b.WriteByte(field[i])
	}

	return b.String()
}
