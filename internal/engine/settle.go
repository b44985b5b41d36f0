// Package engine drives the per-day lifecycle of the ledger: Phase B
// settles obligations due today, Phase C nets and clears same-day
// cross-bank client payments, and the day driver sequences the two.
package engine

import (
	"errors"
	"io"
	"log/slog"

	"github.com/opensimfi/daybook/internal/ledger"
	"github.com/shopspring/decimal"
)

// Settler is the Phase B engine. For every obligation whose due day is
// today it walks the debtor's policy-ranked settlement means and either
// fully discharges the obligation or fails it with a DefaultError,
// rolling back any partial payment.
type Settler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewSettler creates a Phase B engine over the ledger.
func NewSettler(l *ledger.Ledger, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Settler{ledger: l, logger: logger}
}

// SettleDue discharges every payable and deliverable due on `day`, in
// instrument-ID order. Each obligation settles in its own atomic scope:
// a default on one does not undo another's settlement.
//
// Defaults are collected and returned joined; any non-default failure
// aborts the scan immediately. Obligations with no due day are never
// touched regardless of day.
func (s *Settler) SettleDue(day int) error {
	var defaults []error

	for _, p := range s.ledger.PayablesDue(day) {
		err := s.settlePayable(day, p)
		switch {
		case err == nil:
		case IsDefault(err):
			s.logger.Warn("payable defaulted", "instrument", p.ID, "debtor", p.Issuer, "error", err)
			defaults = append(defaults, err)
		default:
			defaults = append(defaults, err)
			return errors.Join(defaults...)
		}
	}

	for _, d := range s.ledger.DeliverablesDue(day) {
		err := s.settleDeliverable(day, d)
		switch {
		case err == nil:
		case IsDefault(err):
			s.logger.Warn("deliverable defaulted", "instrument", d.ID, "sku", d.SKU, "error", err)
			defaults = append(defaults, err)
		default:
			defaults = append(defaults, err)
			return errors.Join(defaults...)
		}
	}

	return errors.Join(defaults...)
}

// settlePayable runs the payment-method waterfall for one payable.
// All-or-nothing: either the full amount moves and the payable is
// extinguished, or every partial payment is rolled back and the payable
// stays in the registry untouched.
func (s *Settler) settlePayable(day int, p ledger.Instrument) error {
	debtor, err := s.ledger.Agent(p.Issuer)
	if err != nil {
		return err
	}
	creditor, err := s.ledger.Agent(p.Holder)
	if err != nil {
		return err
	}
	pol := s.ledger.Policy()

	return s.ledger.Transact(func() error {
		remaining := p.Amount
		for _, method := range pol.SettlementOrder(debtor.Kind) {
			if !remaining.IsPositive() {
				break
			}
			kind := method.Kind()
			// Skip means the creditor cannot receive. A deposit payment
			// credits the creditor's bank account; cash and reserves
			// hand over the instrument itself.
			if !pol.CanHold(creditor.Kind, kind) {
				continue
			}
			avail, err := s.ledger.HoldingsTotal(p.Issuer, kind)
			if err != nil {
				return err
			}
			pay := decimal.Min(remaining, avail)
			if !pay.IsPositive() {
				continue
			}
			switch method {
			case ledger.MethodDeposit:
				err = s.ledger.PayByDeposit(p.Issuer, p.Holder, pay)
			case ledger.MethodCash:
				err = s.ledger.TransferCash(p.Issuer, p.Holder, pay)
			case ledger.MethodReserves:
				err = s.ledger.TransferReserves(p.Issuer, p.Holder, pay)
			}
			if err != nil {
				return err
			}
			remaining = remaining.Sub(pay)
		}

		if remaining.IsPositive() {
			return &DefaultError{
				Obligation: p.ID,
				Debtor:     p.Issuer,
				Creditor:   p.Holder,
				Day:        day,
				Shortfall:  remaining,
			}
		}
		if err := s.ledger.SettleObligation(p.ID); err != nil {
			return err
		}
		s.ledger.LogEvent(ledger.Event{Kind: ledger.EvPayableSettled,
			From: p.Issuer, To: p.Holder, Instrument: p.ID, Amount: p.Amount, Denom: p.Denom})
		s.logger.Info("payable settled", "instrument", p.ID,
			"debtor", p.Issuer, "creditor", p.Holder, "amount", p.Amount)
		return nil
	})
}

// settleDeliverable matches the debtor's stock of the obligation's SKU
// against the required quantity. All-or-nothing: a shortfall raises a
// DefaultError naming the SKU and quantity and leaves the obligation
// (and all stock) exactly as it was.
func (s *Settler) settleDeliverable(day int, d ledger.Instrument) error {
	return s.ledger.Transact(func() error {
		stock := s.ledger.StockOf(d.Issuer, d.SKU, d.ID)
		available := decimal.Zero
		for _, piece := range stock {
			available = available.Add(piece.Amount)
		}
		if available.LessThan(d.Amount) {
			return &DefaultError{
				Obligation: d.ID,
				Debtor:     d.Issuer,
				Creditor:   d.Holder,
				Day:        day,
				Shortfall:  d.Amount.Sub(available),
				SKU:        d.SKU,
			}
		}

		remaining := d.Amount
		for _, piece := range stock {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(remaining, piece.Amount)
			if take.LessThan(piece.Amount) && !piece.Divisible {
				// A whole indivisible piece larger than what is left
				// cannot be partially delivered; try the next piece.
				continue
			}
			if _, err := s.ledger.TransferDeliverable(piece.ID, d.Issuer, d.Holder, &take); err != nil {
				return err
			}
			remaining = remaining.Sub(take)
		}
		if remaining.IsPositive() {
			// Total stock sufficed but indivisible pieces could not be
			// cut to fit. Still a default; the rollback restores stock.
			return &DefaultError{
				Obligation: d.ID,
				Debtor:     d.Issuer,
				Creditor:   d.Holder,
				Day:        day,
				Shortfall:  remaining,
				SKU:        d.SKU,
			}
		}

		if err := s.ledger.SettleObligation(d.ID); err != nil {
			return err
		}
		s.ledger.LogEvent(ledger.Event{Kind: ledger.EvDeliverableSettled,
			From: d.Issuer, To: d.Holder, Instrument: d.ID, Amount: d.Amount, SKU: d.SKU})
		s.logger.Info("deliverable settled", "instrument", d.ID,
			"sku", d.SKU, "quantity", d.Amount, "debtor", d.Issuer, "creditor", d.Holder)
		return nil
	})
}
