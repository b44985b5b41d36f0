package engine

import (
	"io"
	"log/slog"

	"github.com/opensimfi/daybook/internal/ledger"
)

// Driver sequences one simulation day: the Phase A marker, Phase B
// settlement, Phase C clearing, then the day counter advance.
type Driver struct {
	ledger  *ledger.Ledger
	settler *Settler
	clearer *Clearer
	logger  *slog.Logger

	// continueOnDefault selects the default-handling policy: when true,
	// a day whose only failures are obligation defaults still proceeds
	// to clearing and advances. Hard errors always stop the day.
	continueOnDefault bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithContinueOnDefault makes the driver log defaults and press on
// instead of stopping the day. Defaults still surface in RunDay's
// return value.
func WithContinueOnDefault() DriverOption {
	return func(d *Driver) { d.continueOnDefault = true }
}

// WithDriverLogger sets the structured logger for the driver and both
// phase engines.
func WithDriverLogger(lg *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = lg }
}

// NewDriver creates a day driver with its own Phase B and C engines.
func NewDriver(l *ledger.Ledger, opts ...DriverOption) *Driver {
	d := &Driver{
		ledger: l,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.settler = NewSettler(l, d.logger)
	d.clearer = NewClearer(l, d.logger)
	return d
}

// RunDay executes one full day. On a fail-fast driver any settlement
// error stops the day before clearing, leaving the day counter where it
// was. With continue-on-default, defaults are reported but the day
// completes and advances.
func (d *Driver) RunDay() error {
	day := d.ledger.Day()
	d.logger.Info("day started", "day", day)

	// Phase A is a no-op marker separating scenario-scheduled activity
	// from settlement in the trace.
	d.ledger.LogEvent(ledger.Event{Kind: ledger.EvPhaseA})

	var defaults error
	if err := d.settler.SettleDue(day); err != nil {
		if !d.continueOnDefault || !AllDefaults(err) {
			return err
		}
		d.logger.Warn("defaults recorded, continuing", "day", day, "error", err)
		defaults = err
	}

	if err := d.clearer.SettleIntradayNets(day); err != nil {
		return err
	}

	d.ledger.AdvanceDay()
	d.logger.Info("day completed", "day", day)
	return defaults
}

// Run executes `days` consecutive days, stopping at the first error a
// fail-fast driver reports. A continue-on-default driver only stops on
// hard errors; the last day's defaults (if any) are returned.
func (d *Driver) Run(days int) error {
	var lastDefaults error
	for i := 0; i < days; i++ {
		err := d.RunDay()
		switch {
		case err == nil:
			lastDefaults = nil
		case d.continueOnDefault && AllDefaults(err):
			lastDefaults = err
		default:
			return err
		}
	}
	return lastDefaults
}
