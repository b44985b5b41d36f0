package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FungibleKey is the set of attributes that must match for two
// instrument pieces to be merged into one.
//
// For money-like kinds the key is (kind, denom, issuer, holder). For
// deliverables it additionally pins SKU and unit price: merging pieces
// of different SKUs or prices would silently corrupt valuation.
//
// The struct is comparable; the unit price is carried as its canonical
// string so equality is exact.
type FungibleKey struct {
	Kind      InstrumentKind
	Denom     string
	Issuer    AgentID
	Holder    AgentID
	SKU       string
	UnitPrice string
}

// KeyOf computes the fungible key of an instrument.
func KeyOf(in *Instrument) FungibleKey {
	k := FungibleKey{
		Kind:   in.Kind,
		Denom:  in.Denom,
		Issuer: in.Issuer,
		Holder: in.Holder,
	}
	if in.Kind == DeliverableKind {
		k.SKU = in.SKU
		k.UnitPrice = in.UnitPrice.String()
	}
	return k
}

// split reduces the source's amount and registers a twin carrying the
// split-off amount with all type-specific fields copied. The twin gets a
// fresh ID; the source keeps its own.
func (l *Ledger) split(in *Instrument, amount decimal.Decimal) (*Instrument, error) {
	const op = "split"
	if !amount.IsPositive() || amount.GreaterThan(in.Amount) {
		return nil, &Error{Code: CodeInvalidInput, Op: op, Instrument: in.ID,
			Message: fmt.Sprintf("split amount %s out of range (have %s)", amount, in.Amount)}
	}
	if in.Kind == DeliverableKind && !in.Divisible {
		return nil, &Error{Code: CodeInvalidInput, Op: op, Instrument: in.ID,
			Message: fmt.Sprintf("indivisible %s cannot be split", in.SKU)}
	}
	twin := in.clone()
	twin.ID = l.ids.Next()
	twin.Amount = amount
	in.Amount = in.Amount.Sub(amount)
	if err := l.register(op, twin); err != nil {
		return nil, err
	}
	return twin, nil
}

// merge adds b's amount into a, then detaches and deletes b. The two
// pieces must share a fungible key.
func (l *Ledger) merge(a, b *Instrument) error {
	const op = "merge"
	if a.ID == b.ID {
		return &Error{Code: CodeInvalidInput, Op: op, Instrument: a.ID, Message: "merge with self"}
	}
	if KeyOf(a) != KeyOf(b) {
		return &Error{Code: CodeNotFungible, Op: op, Instrument: b.ID,
			Message: fmt.Sprintf("keys differ: %+v vs %+v", KeyOf(a), KeyOf(b))}
	}
	a.Amount = a.Amount.Add(b.Amount)
	l.drop(b)
	l.LogEvent(Event{Kind: EvInstrumentMerged, Instrument: a.ID, From: b.Holder,
		Amount: a.Amount, Denom: a.Denom, SKU: a.SKU})
	return nil
}

// consume reduces an instrument's amount, deleting it entirely when the
// amount reaches zero. The atomic spend-down primitive behind retire,
// conversion, and deposit debits.
func (l *Ledger) consume(in *Instrument, amount decimal.Decimal) error {
	const op = "consume"
	if !amount.IsPositive() || amount.GreaterThan(in.Amount) {
		return &Error{Code: CodeInvalidInput, Op: op, Instrument: in.ID,
			Message: fmt.Sprintf("consume amount %s out of range (have %s)", amount, in.Amount)}
	}
	in.Amount = in.Amount.Sub(amount)
	if in.Amount.IsZero() {
		l.drop(in)
	}
	return nil
}

// coalesce merges an agent's same-key pieces of one kind into the first
// piece of each key, bounding registry fragmentation under repeated
// small transfers.
//
// Grouping is by full fungible key. For money kinds this coincides with
// the looser (denom, issuer) grouping, since holder and kind are fixed
// within one agent's scan.
func (l *Ledger) coalesce(a *Agent, kind InstrumentKind) error {
	first := make(map[FungibleKey]*Instrument)
	// Snapshot the piece list up front; merging mutates the asset list.
	pieces := l.holdings(a, kind)
	for _, in := range pieces {
		key := KeyOf(in)
		head, ok := first[key]
		if !ok {
			first[key] = in
			continue
		}
		if err := l.merge(head, in); err != nil {
			return err
		}
	}
	return nil
}

// Split is the public, transactional form of the split primitive.
// Returns the twin's ID.
func (l *Ledger) Split(id InstrumentID, amount decimal.Decimal) (InstrumentID, error) {
	var twinID InstrumentID
	err := l.Transact(func() error {
		in, err := l.instrumentRef("split", id)
		if err != nil {
			return err
		}
		twin, err := l.split(in, amount)
		if err != nil {
			return err
		}
		twinID = twin.ID
		return nil
	})
	return twinID, err
}

// Merge is the public, transactional form of the merge primitive:
// b is folded into a and deleted.
func (l *Ledger) Merge(a, b InstrumentID) error {
	return l.Transact(func() error {
		ia, err := l.instrumentRef("merge", a)
		if err != nil {
			return err
		}
		ib, err := l.instrumentRef("merge", b)
		if err != nil {
			return err
		}
		return l.merge(ia, ib)
	})
}

// Consume is the public, transactional form of the consume primitive.
func (l *Ledger) Consume(id InstrumentID, amount decimal.Decimal) error {
	return l.Transact(func() error {
		in, err := l.instrumentRef("consume", id)
		if err != nil {
			return err
		}
		return l.consume(in, amount)
	})
}

// CoalesceDeposits merges all of a customer's deposits at one bank into
// a single instrument, creating a zero-balance deposit if none exist.
func (l *Ledger) CoalesceDeposits(customer, bank AgentID) error {
	const op = "coalesce_deposits"
	return l.Transact(func() error {
		cust, err := l.agent(op, customer)
		if err != nil {
			return err
		}
		if _, err := l.agent(op, bank); err != nil {
			return err
		}
		var atBank []*Instrument
		for _, in := range l.holdings(cust, DepositKind) {
			if in.Issuer == bank {
				atBank = append(atBank, in)
			}
		}
		if len(atBank) == 0 {
			dep := &Instrument{
				ID:     l.ids.Next(),
				Kind:   DepositKind,
				Amount: decimal.Zero,
				Denom:  l.denom,
				Holder: customer,
				Issuer: bank,
			}
			return l.register(op, dep)
		}
		head := atBank[0]
		for _, in := range atBank[1:] {
			if err := l.merge(head, in); err != nil {
				return err
			}
		}
		return nil
	})
}
