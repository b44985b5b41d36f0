package scenario

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/opensimfi/daybook/internal/engine"
	"github.com/opensimfi/daybook/internal/ledger"
	"github.com/opensimfi/daybook/internal/policy"
)

// Runner owns a ledger and day driver built from one scenario.
type Runner struct {
	Scenario *Scenario
	Ledger   *ledger.Ledger
	Driver   *engine.Driver
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	logger            *slog.Logger
	ids               ledger.IDGenerator
	continueOnDefault bool
}

// WithLogger sets the structured logger for the ledger and driver.
func WithLogger(lg *slog.Logger) RunnerOption {
	return func(c *runnerConfig) { c.logger = lg }
}

// WithIDGenerator overrides the default sequential instrument IDs.
func WithIDGenerator(g ledger.IDGenerator) RunnerOption {
	return func(c *runnerConfig) { c.ids = g }
}

// WithContinueOnDefault runs days to completion even when obligations
// default.
func WithContinueOnDefault() RunnerOption {
	return func(c *runnerConfig) { c.continueOnDefault = true }
}

// NewRunner builds the ledger, registers the scenario's agents, and
// executes its setup steps. Setup runs on day 0 before the first day.
func NewRunner(sc *Scenario, opts ...RunnerOption) (*Runner, error) {
	cfg := &runnerConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    ledger.NewSequentialGenerator("instr"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var table ledger.Policy
	if sc.Policy != nil {
		t, err := policy.FromConfig(*sc.Policy)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		table = t
	} else {
		table = policy.Default()
	}

	lopts := []ledger.Option{
		ledger.WithLogger(cfg.logger),
		ledger.WithIDGenerator(cfg.ids),
	}
	if sc.Denom != "" {
		lopts = append(lopts, ledger.WithDenom(sc.Denom))
	}
	l := ledger.New(table, lopts...)

	for _, a := range sc.Agents {
		kind, err := ledger.ParseAgentKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: agent %s: %w", sc.Name, a.ID, err)
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		if err := l.AddAgent(ledger.Agent{ID: ledger.AgentID(a.ID), Name: name, Kind: kind}); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}

	for i, st := range sc.Setup {
		if err := applyStep(l, st); err != nil {
			return nil, fmt.Errorf("scenario %s: setup step %d (%s): %w", sc.Name, i+1, st.Op, err)
		}
	}

	dopts := []engine.DriverOption{engine.WithDriverLogger(cfg.logger)}
	if cfg.continueOnDefault {
		dopts = append(dopts, engine.WithContinueOnDefault())
	}

	return &Runner{
		Scenario: sc,
		Ledger:   l,
		Driver:   engine.NewDriver(l, dopts...),
	}, nil
}

// Run executes the scenario's full day count.
func (r *Runner) Run() error {
	return r.Driver.Run(r.Scenario.Days)
}

// applyStep dispatches one setup operation to the ledger.
func applyStep(l *ledger.Ledger, st Step) error {
	switch st.Op {
	case "mint_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		_, err = l.MintCash(ledger.AgentID(st.To), amt)
		return err

	case "mint_reserves":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		_, err = l.MintReserves(ledger.AgentID(st.To), amt)
		return err

	case "retire_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.RetireCash(ledger.AgentID(st.From), amt)

	case "transfer_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.TransferCash(ledger.AgentID(st.From), ledger.AgentID(st.To), amt)

	case "transfer_reserves":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.TransferReserves(ledger.AgentID(st.From), ledger.AgentID(st.To), amt)

	case "convert_reserves_to_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.ConvertReservesToCash(ledger.AgentID(st.Bank), amt)

	case "convert_cash_to_reserves":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.ConvertCashToReserves(ledger.AgentID(st.Bank), amt)

	case "deposit_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.DepositCash(ledger.AgentID(st.Customer), ledger.AgentID(st.Bank), amt)

	case "withdraw_cash":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.WithdrawCash(ledger.AgentID(st.Customer), ledger.AgentID(st.Bank), amt)

	case "pay_by_deposit":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		return l.PayByDeposit(ledger.AgentID(st.From), ledger.AgentID(st.To), amt)

	case "coalesce_deposits":
		return l.CoalesceDeposits(ledger.AgentID(st.Customer), ledger.AgentID(st.Bank))

	case "create_payable":
		amt, err := amount("amount", st.Amount)
		if err != nil {
			return err
		}
		_, err = l.CreatePayable(ledger.AgentID(st.Debtor), ledger.AgentID(st.Creditor), amt, st.DueDay)
		return err

	case "create_deliverable":
		qty, err := amount("quantity", st.Quantity)
		if err != nil {
			return err
		}
		price, err := amount("unit_price", st.UnitPrice)
		if err != nil {
			return err
		}
		divisible := false
		if st.Divisible != nil {
			divisible = *st.Divisible
		}
		_, err = l.CreateDeliverable(ledger.AgentID(st.Issuer), ledger.AgentID(st.Holder),
			st.SKU, qty, price, divisible, st.DueDay)
		return err

	case "update_deliverable_price":
		price, err := amount("price", st.Price)
		if err != nil {
			return err
		}
		return l.UpdateDeliverablePrice(ledger.InstrumentID(st.Instrument), price)

	case "transfer_deliverable":
		var qty *decimal.Decimal
		if st.Quantity != "" {
			q, err := amount("quantity", st.Quantity)
			if err != nil {
				return err
			}
			qty = &q
		}
		_, err := l.TransferDeliverable(ledger.InstrumentID(st.Instrument),
			ledger.AgentID(st.From), ledger.AgentID(st.To), qty)
		return err

	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}

// amount parses a required decimal field.
func amount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("missing %q", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %q: %w", field, err)
	}
	return d, nil
}
