package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensimfi/daybook/internal/engine"
	"github.com/opensimfi/daybook/internal/journal"
	"github.com/opensimfi/daybook/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Days              int
	Journal           string
	ContinueOnDefault bool
}

// RunResult summarizes a completed simulation run.
type RunResult struct {
	Scenario string `json:"scenario"`
	Days     int    `json:"days"`
	Events   int    `json:"events"`
	Defaults int    `json:"defaults"`
	RunID    string `json:"run_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario through the day cycle",
		Long: `Run a scenario: register agents, execute setup, then drive the
daily cycle (Phase A bookkeeping, Phase B settlement, Phase C interbank
clearing) for the scenario's day count.

Example:
  daybook run scenarios/cash-cycle.yaml
  daybook run scenarios/cash-cycle.yaml --days 5 --journal ./runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 0, "override the scenario's day count")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "archive the event log to this SQLite database")
	cmd.Flags().BoolVar(&opts.ContinueOnDefault, "continue-on-default", false, "keep running days after obligations default")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sc, err := scenario.Load(path)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if opts.Days > 0 {
		sc.Days = opts.Days
	}

	ropts := []scenario.RunnerOption{scenario.WithLogger(logger)}
	if opts.ContinueOnDefault {
		ropts = append(ropts, scenario.WithContinueOnDefault())
	}
	runner, err := scenario.NewRunner(sc, ropts...)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build scenario", err)
	}

	runErr := runner.Run()
	if runErr != nil && !engine.AllDefaults(runErr) {
		_ = formatter.Error("E001", runErr.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	if err := runner.Ledger.AssertInvariants(); err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitFailure, "invariant violation after run", err)
	}

	events := runner.Ledger.Events()
	result := RunResult{
		Scenario: sc.Name,
		Days:     sc.Days,
		Events:   len(events),
	}
	if runErr != nil {
		result.Defaults = countDefaults(runErr)
	}

	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()

		ctx := cmd.Context()
		runID, err := j.BeginRun(ctx, sc.Name)
		if err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to begin journal run", err)
		}
		if err := j.Append(ctx, runID, events); err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to archive events", err)
		}
		result.RunID = runID
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "scenario %s: ran %d day(s), %d event(s)\n",
			result.Scenario, result.Days, result.Events)
		if result.RunID != "" {
			fmt.Fprintf(formatter.Writer, "archived as run %s\n", result.RunID)
		}
		if runErr != nil {
			fmt.Fprintf(formatter.Writer, "defaults:\n%v\n", runErr)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "obligations defaulted", runErr)
	}
	return nil
}

// countDefaults counts the DefaultErrors inside a joined error tree.
func countDefaults(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, sub := range joined.Unwrap() {
			n += countDefaults(sub)
		}
		return n
	}
	if engine.IsDefault(err) {
		return 1
	}
	return 0
}
