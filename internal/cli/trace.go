package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensimfi/daybook/internal/journal"
	"github.com/opensimfi/daybook/internal/ledger"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Day     int
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect archived runs and their event logs",
		Long: `List archived runs, or dump one run's event log in seq order.

Without a run ID, lists every run in the journal. With one, prints the
run's events; --day narrows to a single day.

Example:
  daybook trace --journal ./runs.db
  daybook trace --journal ./runs.db 0198f0a2-... --day 1`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the journal SQLite database (required)")
	cmd.Flags().IntVar(&opts.Day, "day", -1, "restrict output to one day")
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()

	if runID == "" {
		runs, err := j.Runs(ctx)
		if err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(formatter.Writer, "no archived runs")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(formatter.Writer, "%s  %s  %s\n", r.ID, r.CreatedAt, r.Scenario)
		}
		return nil
	}

	var events []ledger.Event
	if opts.Day >= 0 {
		events, err = j.ReadDay(ctx, runID, opts.Day)
	} else {
		events, err = j.ReadRun(ctx, runID)
	}
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(events)
	}
	for _, e := range events {
		fmt.Fprintln(formatter.Writer, formatEvent(e))
	}
	return nil
}

// formatEvent renders one event as a single trace line. The same
// rendering backs the golden trace files in the scenario tests, so a
// test failure diff reads like `daybook trace` output.
func formatEvent(e ledger.Event) string {
	s := fmt.Sprintf("%4d d%d %-22s", e.Seq, e.Day, e.Kind)
	if e.From != "" {
		s += fmt.Sprintf(" from=%s", e.From)
	}
	if e.To != "" {
		s += fmt.Sprintf(" to=%s", e.To)
	}
	if e.FromBank != "" {
		s += fmt.Sprintf(" from_bank=%s", e.FromBank)
	}
	if e.ToBank != "" {
		s += fmt.Sprintf(" to_bank=%s", e.ToBank)
	}
	if e.Instrument != "" {
		s += fmt.Sprintf(" instrument=%s", e.Instrument)
	}
	if !e.Amount.IsZero() {
		s += fmt.Sprintf(" amount=%s", e.Amount)
	}
	if e.Denom != "" {
		s += fmt.Sprintf(" denom=%s", e.Denom)
	}
	if e.SKU != "" {
		s += fmt.Sprintf(" sku=%s", e.SKU)
	}
	return strings.TrimRight(s, " ")
}

// FormatEvents renders an event slice one line per event, for golden
// trace comparison.
func FormatEvents(events []ledger.Event) string {
	out := ""
	for _, e := range events {
		out += formatEvent(e) + "\n"
	}
	return out
}
