package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opensimfi/daybook/internal/ledger"
	"github.com/opensimfi/daybook/internal/scenario"
)

// BalancesOptions holds flags for the balances command.
type BalancesOptions struct {
	*RootOptions
	Agent string
	Days  int
}

// AgentBalances is the JSON shape for one agent's balance sheet.
type AgentBalances struct {
	Agent       string            `json:"agent"`
	Kind        string            `json:"kind"`
	Assets      map[string]string `json:"assets"`
	Liabilities map[string]string `json:"liabilities"`
	Net         string            `json:"net"`
}

// NewBalancesCommand creates the balances command.
func NewBalancesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalancesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balances <scenario.yaml>",
		Short: "Run a scenario and print each agent's balance sheet",
		Long: `Run a scenario to completion and print every agent's closing
balance sheet, grouped by instrument kind. Defaults do not stop the
run; the sheet shows the positions they left behind.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalances(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Agent, "agent", "", "show only this agent")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "override the scenario's day count")

	return cmd
}

func runBalances(opts *BalancesOptions, path string, cmd *cobra.Command) error {
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

	runner, err := scenario.NewRunner(sc,
		scenario.WithLogger(logger),
		scenario.WithContinueOnDefault())
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build scenario", err)
	}
	if err := runner.Run(); err != nil {
		formatter.VerboseLog("run finished with defaults: %v", err)
	}

	agents := runner.Ledger.Agents()
	if opts.Agent != "" {
		a, err := runner.Ledger.Agent(ledger.AgentID(opts.Agent))
		if err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return WrapExitError(ExitCommandError, "unknown agent", err)
		}
		agents = []ledger.Agent{a}
	}

	if formatter.Format == "json" {
		sheets := make([]AgentBalances, 0, len(agents))
		for _, a := range agents {
			b, err := runner.Ledger.AgentBalance(a.ID)
			if err != nil {
				return WrapExitError(ExitFailure, "balance aggregation failed", err)
			}
			sheets = append(sheets, AgentBalances{
				Agent:       string(a.ID),
				Kind:        a.Kind.String(),
				Assets:      kindMap(b.Assets),
				Liabilities: kindMap(b.Liabilities),
				Net:         b.AssetTotal().Sub(b.LiabilityTotal()).String(),
			})
		}
		return formatter.Success(sheets)
	}

	printer := message.NewPrinter(language.English)
	heading := color.New(color.FgCyan, color.Bold)
	negative := color.New(color.FgRed)
	positive := color.New(color.FgGreen)

	for _, a := range agents {
		b, err := runner.Ledger.AgentBalance(a.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "balance aggregation failed", err)
		}

		heading.Fprintf(formatter.Writer, "%s (%s)\n", a.ID, a.Kind)
		printSide(formatter, printer, "assets", b.Assets)
		printSide(formatter, printer, "liabilities", b.Liabilities)

		net := b.AssetTotal().Sub(b.LiabilityTotal())
		c := positive
		if net.IsNegative() {
			c = negative
		}
		c.Fprintf(formatter.Writer, "  net worth: %s\n\n", grouped(printer, net))
	}

	tb := runner.Ledger.TrialBalance()
	fmt.Fprintf(formatter.Writer, "trial balance: assets %s / liabilities %s\n",
		grouped(printer, tb.Assets), grouped(printer, tb.Liabilities))
	return nil
}

func printSide(f *OutputFormatter, p *message.Printer, label string, side map[ledger.InstrumentKind]decimal.Decimal) {
	fmt.Fprintf(f.Writer, "  %s:\n", label)
	if len(side) == 0 {
		fmt.Fprintln(f.Writer, "    (none)")
		return
	}
	for _, kind := range ledger.InstrumentKinds() {
		amt, ok := side[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(f.Writer, "    %-16s %s\n", kind, grouped(p, amt))
	}
}

// grouped renders a decimal with thousands separators. Display only:
// the exact value stays in the ledger.
func grouped(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.InexactFloat64())
}

func kindMap(side map[ledger.InstrumentKind]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(side))
	for kind, amt := range side {
		out[kind.String()] = amt.String()
	}
	return out
}
