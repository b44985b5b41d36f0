package ledger

import "github.com/shopspring/decimal"

// EventKind names an entry in the append-only event log. The set below is
// the complete vocabulary emitted by the core; downstream analytics
// reconstruct history from these records without re-running a simulation.
type EventKind string

const (
	EvCashMinted                EventKind = "CashMinted"
	EvCashRetired               EventKind = "CashRetired"
	EvCashTransferred           EventKind = "CashTransferred"
	EvReservesMinted            EventKind = "ReservesMinted"
	EvReservesTransferred       EventKind = "ReservesTransferred"
	EvReservesToCash            EventKind = "ReservesToCash"
	EvCashToReserves            EventKind = "CashToReserves"
	EvCashDeposited             EventKind = "CashDeposited"
	EvCashWithdrawn             EventKind = "CashWithdrawn"
	EvClientPayment             EventKind = "ClientPayment"
	EvDeliverableCreated        EventKind = "DeliverableCreated"
	EvDeliverablePriceUpdated   EventKind = "DeliverablePriceUpdated"
	EvDeliverableTransferred    EventKind = "DeliverableTransferred"
	EvObligationSettled         EventKind = "ObligationSettled"
	EvPayableSettled            EventKind = "PayableSettled"
	EvDeliverableSettled        EventKind = "DeliverableSettled"
	EvInstrumentMerged          EventKind = "InstrumentMerged"
	EvInterbankCleared          EventKind = "InterbankCleared"
	EvInterbankOvernightCreated EventKind = "InterbankOvernightCreated"
	EvPhaseA                    EventKind = "PhaseA"
)

// Event is an immutable record appended on every state-changing
// operation. Fields beyond Seq, Kind, and Day are sparse: each kind
// populates only those that apply.
//
// Events participate in state snapshots; a rolled-back transaction also
// rolls back the events it appended. Seq values are stamped from the
// ledger clock, which does not roll back, so the log may contain seq gaps
// after a failed operation. Ordering remains strict and deterministic.
type Event struct {
	Seq        int64           `json:"seq"`
	Kind       EventKind       `json:"kind"`
	Day        int             `json:"day"`
	From       AgentID         `json:"from,omitempty"`
	To         AgentID         `json:"to,omitempty"`
	FromBank   AgentID         `json:"from_bank,omitempty"`
	ToBank     AgentID         `json:"to_bank,omitempty"`
	Instrument InstrumentID    `json:"instrument,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Denom      string          `json:"denom,omitempty"`
	SKU        string          `json:"sku,omitempty"`
}
