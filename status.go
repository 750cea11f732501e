package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/ledger"
)

// statusReport is the output of "guardian status".
type statusReport struct {
	Daemon    daemonStatus  `json:"daemon"`
	Mount     mountStatus   `json:"mount"`
	Capture   captureStatus `json:"capture"`
	Dirs      []dirCheck    `json:"directories"`
	Records   ledger.Counts `json:"records"`
	LedgerErr string        `json:"ledger_error,omitempty"`
}

type daemonStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type mountStatus struct {
	Drive   string `json:"drive"`
	Point   string `json:"point"`
	Mounted bool   `json:"mounted"`
	Error   string `json:"error,omitempty"`
}

type captureStatus struct {
	Name      string `json:"name"`
	Processes []int  `json:"pids"`
	Error     string `json:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, mount, capture process, and ledger status",
		Long: `Reports whether a guardian daemon holds the PID file, whether the capture
volume is mounted, which capture processes are running, and how many
records are pending, uploaded, and deleted. Nothing is changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			report := collectStatus(cmd.Context(), cc)

			if cc.Flags.JSON {
				return printJSON(cc.Stdout, report)
			}

			return printStatus(cc.Stdout, report)
		},
	}
}

// collectStatus gathers every section independently; a failing probe is
// reported in its section instead of aborting the command.
func collectStatus(ctx context.Context, cc *CLIContext) statusReport {
	var report statusReport

	pid, err := livePID(cc.Cfg.PIDPath())
	switch {
	case err == nil:
		report.Daemon = daemonStatus{Running: true, PID: pid}
	case errors.Is(err, errDaemonNotRunning):
		report.Daemon = daemonStatus{Detail: err.Error()}
	default:
		report.Daemon = daemonStatus{Detail: err.Error()}
		cc.Logger.Warn("reading PID file", slog.String("error", err.Error()))
	}

	ctrl := newMountController(cc, newRunner(cc))
	report.Mount = mountStatus{Drive: ctrl.Drive(), Point: ctrl.Point()}

	if mounted, mErr := ctrl.IsMounted(); mErr != nil {
		report.Mount.Error = mErr.Error()
	} else {
		report.Mount.Mounted = mounted
	}

	// A fresh supervisor owns nothing, so every same-named process is listed.
	sup := newSupervisor(cc, nil, nil)
	report.Capture = captureStatus{Name: cc.Cfg.Daemon.Name, Processes: []int{}}

	if pids, pErr := sup.Untracked(); pErr != nil {
		report.Capture.Error = pErr.Error()
	} else {
		report.Capture.Processes = append(report.Capture.Processes, pids...)
	}

	report.Dirs = pipelineDirectories(cc)

	if lErr := withLedger(ctx, cc, func(store *ledger.Store) error {
		counts, cErr := store.Counts(ctx)
		report.Records = counts

		return cErr
	}); lErr != nil {
		report.LedgerErr = lErr.Error()
	}

	return report
}

func printStatus(w io.Writer, r statusReport) error {
	daemon := "stopped"
	if r.Daemon.Running {
		daemon = fmt.Sprintf("running (PID %d)", r.Daemon.PID)
	}

	mounted := "not mounted"
	switch {
	case r.Mount.Error != "":
		mounted = "unknown: " + r.Mount.Error
	case r.Mount.Mounted:
		mounted = "mounted"
	}

	capture := "not running"
	switch {
	case r.Capture.Error != "":
		capture = "unknown: " + r.Capture.Error
	case len(r.Capture.Processes) > 0:
		capture = fmt.Sprintf("running %v", r.Capture.Processes)
	}

	ledgerLine := fmt.Sprintf("%d pending, %d uploaded, %d deleted",
		r.Records.Pending, r.Records.Uploaded, r.Records.Deleted)
	if r.LedgerErr != "" {
		ledgerLine = "unavailable: " + r.LedgerErr
	}

	rows := [][]string{
		{"guardian", daemon},
		{"volume", fmt.Sprintf("%s on %s: %s", r.Mount.Drive, r.Mount.Point, mounted)},
		{r.Capture.Name, capture},
	}

	for _, d := range r.Dirs {
		rows = append(rows, []string{d.Name + " dir", fmt.Sprintf("%s: %s", dashIfEmpty(d.Path), d.Detail)})
	}

	rows = append(rows, []string{"records", ledgerLine})

	return printTable(w, []string{"COMPONENT", "STATE"}, rows)
}
