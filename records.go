package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/ledger"
)

func newRecordsCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List ingested recordings",
		Long:  "Lists ledger records, oldest first. --state filters to pending, uploaded, or deleted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			var states []ledger.State

			if state != "" {
				s, err := ledger.ParseState(state)
				if err != nil {
					return err
				}

				states = append(states, s)
			}

			return withLedger(ctx, cc, func(store *ledger.Store) error {
				records, err := store.List(ctx, states...)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, records)
				}

				return printRecords(cc.Stdout, records)
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, uploaded, deleted)")
	cmd.AddCommand(newRecordLogsCmd())

	return cmd
}

func newRecordLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs ID",
		Short: "Show the log entries of one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record ID %q: %w", args[0], err)
			}

			return withLedger(ctx, cc, func(store *ledger.Store) error {
				rec, err := store.Get(ctx, id)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, rec.Logs)
				}

				return printRecordLogs(cc.Stdout, rec)
			})
		},
	}
}

// withLedger opens the ledger for the duration of fn.
func withLedger(ctx context.Context, cc *CLIContext, fn func(*ledger.Store) error) error {
	store, err := openLedger(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

func printRecords(w io.Writer, records []*ledger.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records.")
		return err
	}

	rows := make([][]string, 0, len(records))

	for _, r := range records {
		uploaded := "-"
		if r.UploadedAt != nil {
			uploaded = formatTime(*r.UploadedAt)
		}

		rows = append(rows, []string{
			r.ID.String(),
			r.FileName,
			string(r.State()),
			formatTime(r.CreatedAt),
			uploaded,
			dashIfEmpty(r.RemoteID),
		})
	}

	return printTable(w, []string{"ID", "FILE", "STATE", "CREATED", "UPLOADED", "REMOTE ID"}, rows)
}

func printRecordLogs(w io.Writer, rec *ledger.Record) error {
	if _, err := fmt.Fprintf(w, "%s (%s)\n", rec.FileName, rec.State()); err != nil {
		return err
	}

	if len(rec.Logs) == 0 {
		_, err := fmt.Fprintln(w, "No log entries.")
		return err
	}

	rows := make([][]string, 0, len(rec.Logs))

	for _, l := range rec.Logs {
		level := "info"
		if l.IsError {
			level = "error"
		}

		rows = append(rows, []string{formatTime(l.Date), level, l.Message})
	}

	return printTable(w, []string{"DATE", "LEVEL", "MESSAGE"}, rows)
}
