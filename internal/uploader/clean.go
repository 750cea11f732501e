package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maidastach/guardian/internal/gdrive"
)

// CleanupSummary reports a remote cleanup pass. File entries are formatted
// as "name - id".
type CleanupSummary struct {
	Files        []string `json:"files"`
	Deleted      []string `json:"deleted"`
	Failed       []string `json:"failed,omitempty"`
	Total        int      `json:"total"`
	DeletedCount int      `json:"deleted_count"`
	Trashed      bool     `json:"trashed"`
}

// Clean deletes remote files none of whose parents is a listed file, then
// empties the trash. The upload folder itself is never deleted. A failed
// delete is recorded and the pass continues.
func (r *Reconciler) Clean(ctx context.Context) (CleanupSummary, error) {
	var summary CleanupSummary

	files, err := r.remote.ListAllFiles(ctx)
	if err != nil {
		return summary, fmt.Errorf("uploader: listing remote files: %w", err)
	}

	rootID, err := r.remote.RootID(ctx)
	if err != nil {
		return summary, fmt.Errorf("uploader: resolving upload folder: %w", err)
	}

	summary.Total = len(files)
	summary.Files = make([]string, 0, len(files))

	for _, f := range files {
		summary.Files = append(summary.Files, label(f))
	}

	orphans := findOrphans(files, rootID)
	r.logger.Warn("remote files to delete", slog.Int("count", len(orphans)))

	for _, f := range orphans {
		if err := r.remote.DeleteFile(ctx, f.ID); err != nil {
			if ctx.Err() != nil {
				return summary, fmt.Errorf("uploader: cleanup interrupted: %w", ctx.Err())
			}

			r.logger.Error("deleting remote file failed",
				slog.String("file", f.Name),
				slog.String("id", f.ID),
				slog.String("error", err.Error()),
			)

			summary.Failed = append(summary.Failed, label(f))

			continue
		}

		summary.Deleted = append(summary.Deleted, label(f))
		r.logger.Warn("deleted remote file", slog.String("file", f.Name), slog.String("id", f.ID))
	}

	summary.DeletedCount = len(summary.Deleted)

	if err := r.remote.EmptyTrash(ctx); err != nil {
		return summary, fmt.Errorf("uploader: emptying trash: %w", err)
	}

	summary.Trashed = true
	r.logger.Warn("cleaned remote files",
		slog.Int("total", summary.Total),
		slog.Int("deleted", summary.DeletedCount),
		slog.Int("failed", len(summary.Failed)),
	)

	if len(summary.Failed) > 0 {
		return summary, errors.New("uploader: some remote files could not be deleted")
	}

	return summary, nil
}

// findOrphans returns files not reachable through any listed parent. A
// file with no parents at all is an orphan. rootID is exempt.
func findOrphans(files []gdrive.File, rootID string) []gdrive.File {
	known := make(map[string]struct{}, len(files))
	for _, f := range files {
		known[f.ID] = struct{}{}
	}

	var orphans []gdrive.File

	for _, f := range files {
		if f.ID == rootID {
			continue
		}

		reachable := false

		for _, p := range f.Parents {
			if _, ok := known[p]; ok {
				reachable = true
				break
			}
		}

		if !reachable {
			orphans = append(orphans, f)
		}
	}

	return orphans
}

func label(f gdrive.File) string {
	return f.Name + " - " + f.ID
}
