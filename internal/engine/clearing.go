package engine

import (
	"io"
	"log/slog"
	"slices"

	"github.com/opensimfi/daybook/internal/ledger"
	"github.com/shopspring/decimal"
)

// Clearer is the Phase C engine: it nets same-day cross-bank client
// payments into a single interbank obligation per ordered bank pair,
// settles each net in reserves, and falls back to an overnight payable
// when reserves are short.
type Clearer struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewClearer creates a Phase C engine over the ledger.
func NewClearer(l *ledger.Ledger, logger *slog.Logger) *Clearer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Clearer{ledger: l, logger: logger}
}

// PairNet is the net position between one bank pair for one day.
// Smaller is always the lexicographically smaller bank ID; a positive
// Net means Smaller owes Larger. The tie-break rule guarantees one
// canonical sign convention per pair and prevents double counting.
type PairNet struct {
	Smaller ledger.AgentID
	Larger  ledger.AgentID
	Net     decimal.Decimal
}

// ComputeIntradayNets scans the event log for ClientPayment events
// stamped with `day` and accumulates the cross-bank ones into per-pair
// nets. Pure function of (day, log): running it twice yields identical
// results, and it never mutates state.
//
// Pairs whose flows fully offset are reported with a zero net.
func (c *Clearer) ComputeIntradayNets(day int) []PairNet {
	type pairKey struct{ a, b ledger.AgentID }
	nets := make(map[pairKey]decimal.Decimal)

	for _, e := range c.ledger.EventsForDay(day) {
		if e.Kind != ledger.EvClientPayment {
			continue
		}
		if e.FromBank == "" || e.ToBank == "" || e.FromBank == e.ToBank {
			continue // same-bank legs clear on the bank's own books
		}
		if e.FromBank < e.ToBank {
			k := pairKey{e.FromBank, e.ToBank}
			nets[k] = nets[k].Add(e.Amount)
		} else {
			k := pairKey{e.ToBank, e.FromBank}
			nets[k] = nets[k].Sub(e.Amount)
		}
	}

	keys := make([]pairKey, 0, len(nets))
	for k := range nets {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y pairKey) int {
		if x.a != y.a {
			if x.a < y.a {
				return -1
			}
			return 1
		}
		if x.b < y.b {
			return -1
		}
		if x.b > y.b {
			return 1
		}
		return 0
	})

	out := make([]PairNet, 0, len(keys))
	for _, k := range keys {
		out = append(out, PairNet{Smaller: k.a, Larger: k.b, Net: nets[k]})
	}
	return out
}

// SettleIntradayNets settles every non-zero net for `day`. The debtor
// pays the creditor in reserves; if the transfer fails (insufficient
// reserves, or any other transfer failure) the net becomes an overnight
// payable due the following day, which Phase B picks up tomorrow.
func (c *Clearer) SettleIntradayNets(day int) error {
	for _, n := range c.ComputeIntradayNets(day) {
		if n.Net.IsZero() {
			continue
		}
		debtor, creditor := n.Smaller, n.Larger
		if n.Net.IsNegative() {
			debtor, creditor = n.Larger, n.Smaller
		}
		amount := n.Net.Abs()

		if err := c.ledger.TransferReserves(debtor, creditor, amount); err != nil {
			due := day + 1
			if _, cerr := c.ledger.CreatePayable(debtor, creditor, amount, &due); cerr != nil {
				return cerr
			}
			c.ledger.LogEvent(ledger.Event{Kind: ledger.EvInterbankOvernightCreated,
				From: debtor, To: creditor, Amount: amount})
			c.logger.Warn("interbank net deferred overnight",
				"debtor", debtor, "creditor", creditor, "amount", amount, "cause", err)
			continue
		}
		c.ledger.LogEvent(ledger.Event{Kind: ledger.EvInterbankCleared,
			From: debtor, To: creditor, Amount: amount})
		c.logger.Info("interbank net cleared",
			"debtor", debtor, "creditor", creditor, "amount", amount)
	}
	return nil
}
