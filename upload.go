package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [FILE]",
		Short: "Upload pending recordings now",
		Long: `Without arguments, retry every pending record in the ledger and print one
outcome per record. With FILE, upload that file directly without creating a
record and print its remote ID.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUpload,
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	p, err := openPipeline(ctx, cc)
	if err != nil {
		return err
	}
	defer p.Close()

	if len(args) == 1 {
		return uploadSingle(ctx, cc, p.reconciler, args[0])
	}

	outcomes, err := p.reconciler.UploadMissing(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, outcomes)
	}

	return printOutcomes(cc.Stdout, outcomes)
}

func uploadSingle(ctx context.Context, cc *CLIContext, rec *uploader.Reconciler, path string) error {
	remoteID, err := rec.UploadOne(ctx, path)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, map[string]string{"path": path, "remote_id": remoteID})
	}

	_, err = fmt.Fprintf(cc.Stdout, "Uploaded %s (remote ID %s)\n", path, remoteID)

	return err
}

// printOutcomes renders one row per attempted record.
func printOutcomes(w io.Writer, outcomes []uploader.Outcome) error {
	if len(outcomes) == 0 {
		_, err := fmt.Fprintln(w, "No pending records.")
		return err
	}

	rows := make([][]string, 0, len(outcomes))
	counts := make(map[uploader.Status]int)

	for _, o := range outcomes {
		counts[o.Status]++
		rows = append(rows, []string{
			o.FileName,
			string(o.Status),
			dashIfEmpty(o.RemoteID),
			dashIfEmpty(o.Message),
		})
	}

	if err := printTable(w, []string{"FILE", "STATUS", "REMOTE ID", "MESSAGE"}, rows); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d uploaded, %d deleted, %d failed, %d skipped\n",
		counts[uploader.StatusUploaded], counts[uploader.StatusDeleted],
		counts[uploader.StatusFailed], counts[uploader.StatusSkipped])

	return err
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Ask the running daemon for an immediate upload sweep",
		Long:  "Sends SIGHUP to the daemon named by the PID file in the state directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pid, err := sendSIGHUP(cc.Cfg.PIDPath())
			if err != nil {
				return err
			}

			cc.Statusf("Upload sweep requested (PID %d)\n", pid)

			return nil
		},
	}
}
