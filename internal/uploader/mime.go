package uploader

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maidastach/guardian/internal/command"
)

// DefaultMimeType is used when the probe cannot determine a type.
const DefaultMimeType = "video/x-msvideo"

// detectMimeType asks file(1) for the MIME type of path, falling back to the
// configured default on any failure.
func (r *Reconciler) detectMimeType(ctx context.Context, path string) string {
	fallback := r.cfg.DefaultMimeType
	if fallback == "" {
		fallback = DefaultMimeType
	}

	if r.runner == nil {
		return fallback
	}

	h, err := r.runner.Execute(ctx, "file --mime-type -b "+command.Quote(path), command.Options{})
	if err != nil {
		r.logger.Warn("unable to get mime type",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return fallback
	}

	mimeType := strings.TrimSpace(h.Stdout)
	if !validMimeType(mimeType) {
		r.logger.Warn("unexpected mime type probe output",
			slog.String("path", path),
			slog.String("output", mimeType),
		)

		return fallback
	}

	return mimeType
}

// validMimeType accepts "type/subtype" with no whitespace. file(1) prints
// diagnostics such as "cannot open ..." with a zero exit code.
func validMimeType(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}

	typ, sub, ok := strings.Cut(s, "/")

	return ok && typ != "" && sub != ""
}
