package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/uploader"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete orphaned remote files and empty the Drive trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			p, err := openPipeline(ctx, cc)
			if err != nil {
				return err
			}
			defer p.Close()

			summary, cleanErr := p.reconciler.Clean(ctx)

			// A partial failure still has a summary worth showing.
			var printErr error
			if cc.Flags.JSON {
				printErr = printJSON(cc.Stdout, summary)
			} else {
				printErr = printCleanup(cc.Stdout, summary)
			}

			if cleanErr != nil {
				return cleanErr
			}

			return printErr
		},
	}
}

func printCleanup(w io.Writer, s uploader.CleanupSummary) error {
	deleted := make(map[string]bool, len(s.Deleted))
	for _, d := range s.Deleted {
		deleted[d] = true
	}

	failed := make(map[string]bool, len(s.Failed))
	for _, f := range s.Failed {
		failed[f] = true
	}

	rows := make([][]string, 0, len(s.Files))

	for _, f := range s.Files {
		action := "kept"

		switch {
		case deleted[f]:
			action = "deleted"
		case failed[f]:
			action = "delete failed"
		}

		rows = append(rows, []string{f, action})
	}

	if len(rows) > 0 {
		if err := printTable(w, []string{"FILE", "ACTION"}, rows); err != nil {
			return err
		}
	}

	trash := "trash emptied"
	if !s.Trashed {
		trash = "trash not emptied"
	}

	_, err := fmt.Fprintf(w, "%d remote files, %d deleted, %s\n", s.Total, s.DeletedCount, trash)

	return err
}
