package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentKind is the closed set of instrument variants. Validation and
// behavior dispatch on this tag; there is no string comparison at runtime.
type InstrumentKind int

const (
	CashKind InstrumentKind = iota
	DepositKind
	ReservesKind
	PayableKind
	DeliverableKind
)

var instrumentKindNames = map[InstrumentKind]string{
	CashKind:        "cash",
	DepositKind:     "bank_deposit",
	ReservesKind:    "reserve_deposit",
	PayableKind:     "payable",
	DeliverableKind: "deliverable",
}

// String returns the snake_case name used in config files and event output.
func (k InstrumentKind) String() string {
	if s, ok := instrumentKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("InstrumentKind(%d)", int(k))
}

// InstrumentKinds returns every kind in declaration order, for callers
// that render balance sheets or iterate policy tables deterministically.
func InstrumentKinds() []InstrumentKind {
	return []InstrumentKind{CashKind, DepositKind, ReservesKind, PayableKind, DeliverableKind}
}

// ParseInstrumentKind maps a config string to its InstrumentKind.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	for k, name := range instrumentKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instrument kind %q", s)
}

// IsFinancial reports whether the kind represents a financial claim.
// Deliverables (goods) are the only non-financial kind. This is a total
// switch over the tag, not an attribute lookup.
func (k InstrumentKind) IsFinancial() bool {
	switch k {
	case CashKind, DepositKind, ReservesKind, PayableKind:
		return true
	case DeliverableKind:
		return false
	default:
		return false
	}
}

// Instrument is a bilateral contract between exactly one asset holder and
// one liability issuer. Amount semantics depend on the kind: a money
// amount for financial instruments, a quantity of goods for deliverables.
//
// The double-entry invariant: a live instrument's ID appears in exactly
// the holder's asset list and exactly the issuer's liability list.
type Instrument struct {
	ID     InstrumentID
	Kind   InstrumentKind
	Amount decimal.Decimal
	Denom  string
	Holder AgentID
	Issuer AgentID

	// DueDay schedules the obligation for Phase B settlement.
	// Only payables and deliverables carry one; nil means never due.
	DueDay *int

	// Deliverable-only fields. Every deliverable carries all three;
	// they are zero-valued on every other kind.
	SKU       string
	UnitPrice decimal.Decimal
	Divisible bool
}

// Validate checks the instrument's own type invariants. It does not check
// registry cross-references; that is AssertInvariants' job.
func (in *Instrument) Validate() error {
	if in.ID == "" {
		return &Error{Code: CodeInvalidInput, Op: "validate", Message: "instrument has empty ID"}
	}
	if in.Amount.IsNegative() {
		return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
			Message: fmt.Sprintf("negative amount %s", in.Amount)}
	}
	if in.Holder == in.Issuer && in.Kind != DeliverableKind {
		// Self-held inventory is legal only for deliverables (goods
		// produced but not yet owed to anyone else).
		return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
			Message: fmt.Sprintf("%s holder equals issuer (%s)", in.Kind, in.Holder)}
	}
	if in.DueDay != nil && *in.DueDay < 0 {
		return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
			Message: fmt.Sprintf("negative due day %d", *in.DueDay)}
	}
	switch in.Kind {
	case DeliverableKind:
		if in.SKU == "" {
			return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
				Message: "deliverable has empty SKU"}
		}
		if in.UnitPrice.IsNegative() {
			return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
				Message: fmt.Sprintf("negative unit price %s", in.UnitPrice)}
		}
	case CashKind, DepositKind, ReservesKind:
		if in.DueDay != nil {
			return &Error{Code: CodeInvalidInput, Op: "validate", Instrument: in.ID,
				Message: fmt.Sprintf("%s cannot carry a due day", in.Kind)}
		}
	}
	return nil
}

// clone returns a deep copy for state snapshots. Decimal values are
// immutable, so copying the struct value is sufficient.
func (in *Instrument) clone() *Instrument {
	cp := *in
	if in.DueDay != nil {
		d := *in.DueDay
		cp.DueDay = &d
	}
	return &cp
}
