// Package ledger implements a deterministic, invariant-enforcing
// double-entry ledger for multi-agent financial simulation.
//
// The Ledger is the sole owner of simulation state. Every mutation goes
// through one of its operations, each of which runs inside an atomic
// transaction: a full state snapshot is taken up front and restored
// wholesale if the operation fails, so no partial effect ever remains.
//
// The ledger is single-threaded by design. Operations run to completion
// before the next is invoked; there is no concurrent access to state.
package ledger

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
)

// SettlementMethod is a means of discharging a payable, ranked per agent
// kind by the policy table. Phase B iterates methods in policy order.
type SettlementMethod int

const (
	MethodDeposit SettlementMethod = iota
	MethodCash
	MethodReserves
)

var settlementMethodNames = map[SettlementMethod]string{
	MethodDeposit:  "deposit",
	MethodCash:     "cash",
	MethodReserves: "reserves",
}

// String returns the snake_case name used in config files.
func (m SettlementMethod) String() string {
	if s, ok := settlementMethodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("SettlementMethod(%d)", int(m))
}

// ParseSettlementMethod maps a config string to its SettlementMethod.
func ParseSettlementMethod(s string) (SettlementMethod, error) {
	for m, name := range settlementMethodNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown settlement method %q", s)
}

// Kind returns the instrument kind a settlement method spends.
func (m SettlementMethod) Kind() InstrumentKind {
	switch m {
	case MethodDeposit:
		return DepositKind
	case MethodCash:
		return CashKind
	default:
		return ReservesKind
	}
}

// Policy is the static capability table consulted on every issue/hold
// decision, plus the per-agent-kind settlement preference ranking.
// Implemented by policy.Table.
type Policy interface {
	CanIssue(AgentKind, InstrumentKind) bool
	CanHold(AgentKind, InstrumentKind) bool
	SettlementOrder(AgentKind) []SettlementMethod
}

// Ledger owns the authoritative registries and exposes the only
// operations allowed to mutate them.
type Ledger struct {
	state       *State
	policy      Policy
	ids         IDGenerator
	clock       *Clock
	denom       string
	centralBank AgentID
	logger      *slog.Logger
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

// WithIDGenerator replaces the default sequential instrument ID
// generator. Tests use FixedGenerator; interactive use UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithLogger sets the structured logger. Defaults to a discard logger so
// library use stays silent unless asked.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// WithDenom sets the denomination stamped on minted money. Default "USD".
func WithDenom(denom string) Option {
	return func(l *Ledger) { l.denom = denom }
}

// New creates an empty ledger governed by the given policy table.
func New(pol Policy, opts ...Option) *Ledger {
	l := &Ledger{
		state:  newState(),
		policy: pol,
		ids:    NewSequentialGenerator("instr"),
		clock:  NewClock(),
		denom:  "USD",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the capability table the ledger was constructed with.
func (l *Ledger) Policy() Policy { return l.policy }

// Day returns the current simulation day.
func (l *Ledger) Day() int { return l.state.day }

// AdvanceDay increments the day counter. Called by the day driver after
// Phase C completes.
func (l *Ledger) AdvanceDay() {
	l.state.day++
	l.logger.Debug("day advanced", "day", l.state.day)
}

// Events returns a copy of the append-only event log.
func (l *Ledger) Events() []Event {
	out := make([]Event, len(l.state.events))
	copy(out, l.state.events)
	return out
}

// EventsForDay returns the log entries stamped with the given day.
func (l *Ledger) EventsForDay(day int) []Event {
	var out []Event
	for _, e := range l.state.events {
		if e.Day == day {
			out = append(out, e)
		}
	}
	return out
}

// LogEvent appends an event to the log, stamping Seq and Day. The
// settlement and clearing engines use this for their phase events; the
// core operations log their own.
func (l *Ledger) LogEvent(e Event) {
	e.Seq = l.clock.Next()
	e.Day = l.state.day
	l.state.events = append(l.state.events, e)
	l.logger.Debug("event", "kind", e.Kind, "seq", e.Seq, "day", e.Day)
}

// Transact runs fn inside an atomic scope: a full snapshot of state is
// taken first, and if fn returns an error the snapshot is restored
// wholesale. Nested calls are legal; an inner rollback restores to the
// inner snapshot only.
//
// Phase B uses this to make a whole settlement waterfall all-or-nothing
// even though each leg is itself a transactional operation.
func (l *Ledger) Transact(fn func() error) error {
	snap := l.state.clone()
	if err := fn(); err != nil {
		l.state = snap
		return err
	}
	return nil
}

// --- registry access -------------------------------------------------

// agent returns the live agent record or a NotFound error.
func (l *Ledger) agent(op string, id AgentID) (*Agent, error) {
	a, ok := l.state.agents[id]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Op: op, Agent: id, Message: "unknown agent"}
	}
	return a, nil
}

// instrumentRef returns the live instrument record or a NotFound error.
func (l *Ledger) instrumentRef(op string, id InstrumentID) (*Instrument, error) {
	in, ok := l.state.instruments[id]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Op: op, Instrument: id, Message: "unknown instrument"}
	}
	return in, nil
}

// Agent returns a copy of the agent record.
func (l *Ledger) Agent(id AgentID) (Agent, error) {
	a, err := l.agent("agent", id)
	if err != nil {
		return Agent{}, err
	}
	return *a.clone(), nil
}

// Instrument returns a copy of the instrument record.
func (l *Ledger) Instrument(id InstrumentID) (Instrument, error) {
	in, err := l.instrumentRef("instrument", id)
	if err != nil {
		return Instrument{}, err
	}
	return *in.clone(), nil
}

// Agents returns copies of every registered agent, sorted by ID.
func (l *Ledger) Agents() []Agent {
	out := make([]Agent, 0, len(l.state.agents))
	for _, id := range l.state.sortedAgentIDs() {
		out = append(out, *l.state.agents[id].clone())
	}
	return out
}

// CentralBank returns the unique central-bank agent ID. The reference is
// captured when the central bank is registered, not found by scanning.
func (l *Ledger) CentralBank() (AgentID, error) {
	if l.centralBank == "" {
		return "", &Error{Code: CodeNotFound, Op: "central_bank", Message: "no central bank registered"}
	}
	return l.centralBank, nil
}

// AddAgent registers an economic actor. Exactly one central bank may be
// registered per ledger; its ID is held for the lifetime of the run.
func (l *Ledger) AddAgent(a Agent) error {
	const op = "add_agent"
	if a.ID == "" {
		return &Error{Code: CodeInvalidInput, Op: op, Message: "empty agent ID"}
	}
	if _, exists := l.state.agents[a.ID]; exists {
		return &Error{Code: CodeInvalidInput, Op: op, Agent: a.ID, Message: "duplicate agent ID"}
	}
	if a.Kind == CentralBank {
		if l.centralBank != "" {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: a.ID,
				Message: fmt.Sprintf("central bank already registered as %s", l.centralBank)}
		}
		l.centralBank = a.ID
	}
	l.state.agents[a.ID] = a.clone()
	l.logger.Info("agent registered", "agent", a.ID, "kind", a.Kind.String())
	return nil
}

// register validates an instrument, consults the policy table, and wires
// it into both agents' collections. The internal write path for every
// issuance operation.
func (l *Ledger) register(op string, in *Instrument) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if _, exists := l.state.instruments[in.ID]; exists {
		return &Error{Code: CodeInvalidInput, Op: op, Instrument: in.ID, Message: "duplicate instrument ID"}
	}
	holder, err := l.agent(op, in.Holder)
	if err != nil {
		return err
	}
	issuer, err := l.agent(op, in.Issuer)
	if err != nil {
		return err
	}
	if !l.policy.CanIssue(issuer.Kind, in.Kind) {
		return &Error{Code: CodePolicyViolation, Op: op, Agent: in.Issuer, Instrument: in.ID,
			Message: fmt.Sprintf("%s may not issue %s", issuer.Kind, in.Kind)}
	}
	if !l.policy.CanHold(holder.Kind, in.Kind) {
		return &Error{Code: CodePolicyViolation, Op: op, Agent: in.Holder, Instrument: in.ID,
			Message: fmt.Sprintf("%s may not hold %s", holder.Kind, in.Kind)}
	}
	l.state.instruments[in.ID] = in
	holder.attachAsset(in.ID)
	issuer.attachLiability(in.ID)
	return nil
}

// drop detaches an instrument from both agents and deletes it.
// Assumes the cross-reference invariant holds; callers that cannot
// assume it (SettleObligation) check first.
func (l *Ledger) drop(in *Instrument) {
	if holder, ok := l.state.agents[in.Holder]; ok {
		holder.detachAsset(in.ID)
	}
	if issuer, ok := l.state.agents[in.Issuer]; ok {
		issuer.detachLiability(in.ID)
	}
	delete(l.state.instruments, in.ID)
}

// AddContract validates and registers an externally built instrument.
// Scenario setup uses this for pre-existing positions.
func (l *Ledger) AddContract(in Instrument) error {
	return l.Transact(func() error {
		return l.register("add_contract", in.clone())
	})
}

// holdings returns the live instruments of a kind held by an agent, in
// asset-list order (stable across runs).
func (l *Ledger) holdings(a *Agent, kind InstrumentKind) []*Instrument {
	var out []*Instrument
	for _, id := range a.Assets {
		if in, ok := l.state.instruments[id]; ok && in.Kind == kind {
			out = append(out, in)
		}
	}
	return out
}

// Holdings returns copies of the instruments of a kind held by an agent.
func (l *Ledger) Holdings(id AgentID, kind InstrumentKind) ([]Instrument, error) {
	a, err := l.agent("holdings", id)
	if err != nil {
		return nil, err
	}
	refs := l.holdings(a, kind)
	out := make([]Instrument, 0, len(refs))
	for _, in := range refs {
		out = append(out, *in.clone())
	}
	return out, nil
}

// HoldingsTotal sums the amounts of a kind held by an agent.
func (l *Ledger) HoldingsTotal(id AgentID, kind InstrumentKind) (decimal.Decimal, error) {
	a, err := l.agent("holdings_total", id)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, in := range l.holdings(a, kind) {
		total = total.Add(in.Amount)
	}
	return total, nil
}

// --- money issuance --------------------------------------------------

// createMoney registers a new central-bank-issued instrument and bumps
// the matching outstanding counter. Shared by mint and conversion paths.
func (l *Ledger) createMoney(op string, kind InstrumentKind, to AgentID, amount decimal.Decimal) (*Instrument, error) {
	if !amount.IsPositive() {
		return nil, &Error{Code: CodeInvalidInput, Op: op, Agent: to,
			Message: fmt.Sprintf("non-positive amount %s", amount)}
	}
	cb, err := l.CentralBank()
	if err != nil {
		return nil, err
	}
	in := &Instrument{
		ID:     l.ids.Next(),
		Kind:   kind,
		Amount: amount,
		Denom:  l.denom,
		Holder: to,
		Issuer: cb,
	}
	if err := l.register(op, in); err != nil {
		return nil, err
	}
	switch kind {
	case CashKind:
		l.state.cashOutstanding = l.state.cashOutstanding.Add(amount)
	case ReservesKind:
		l.state.reservesOutstanding = l.state.reservesOutstanding.Add(amount)
	}
	return in, nil
}

// MintCash creates new central-bank cash held by `to`.
func (l *Ledger) MintCash(to AgentID, amount decimal.Decimal) (InstrumentID, error) {
	var id InstrumentID
	err := l.Transact(func() error {
		in, err := l.createMoney("mint_cash", CashKind, to, amount)
		if err != nil {
			return err
		}
		id = in.ID
		l.LogEvent(Event{Kind: EvCashMinted, To: to, Instrument: in.ID, Amount: amount, Denom: in.Denom})
		l.logger.Info("cash minted", "to", to, "amount", amount, "instrument", in.ID)
		return nil
	})
	return id, err
}

// MintReserves creates new central-bank reserves held by `toBank`.
func (l *Ledger) MintReserves(toBank AgentID, amount decimal.Decimal) (InstrumentID, error) {
	var id InstrumentID
	err := l.Transact(func() error {
		in, err := l.createMoney("mint_reserves", ReservesKind, toBank, amount)
		if err != nil {
			return err
		}
		id = in.ID
		l.LogEvent(Event{Kind: EvReservesMinted, To: toBank, Instrument: in.ID, Amount: amount, Denom: in.Denom})
		l.logger.Info("reserves minted", "to", toBank, "amount", amount, "instrument", in.ID)
		return nil
	})
	return id, err
}

// spendDown greedily consumes pieces of a kind held by an agent until
// amount is covered. Fails with InsufficientFunds before touching
// anything if the holder's total is short.
func (l *Ledger) spendDown(op string, a *Agent, kind InstrumentKind, amount decimal.Decimal) error {
	pieces := l.holdings(a, kind)
	total := decimal.Zero
	for _, in := range pieces {
		total = total.Add(in.Amount)
	}
	if total.LessThan(amount) {
		return &Error{Code: CodeInsufficientFunds, Op: op, Agent: a.ID,
			Message: fmt.Sprintf("have %s %s, need %s", total, kind, amount)}
	}
	remaining := amount
	for _, in := range pieces {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, in.Amount)
		if !take.IsPositive() {
			continue // zero-balance piece, e.g. a coalesced empty deposit
		}
		if err := l.consume(in, take); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return nil
}

// RetireCash destroys cash held by `from`, decrementing the outstanding
// counter. Pieces are consumed greedily in holding order.
func (l *Ledger) RetireCash(from AgentID, amount decimal.Decimal) error {
	const op = "retire_cash"
	return l.Transact(func() error {
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: from,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		a, err := l.agent(op, from)
		if err != nil {
			return err
		}
		if err := l.spendDown(op, a, CashKind, amount); err != nil {
			return err
		}
		l.state.cashOutstanding = l.state.cashOutstanding.Sub(amount)
		l.LogEvent(Event{Kind: EvCashRetired, From: from, Amount: amount, Denom: l.denom})
		l.logger.Info("cash retired", "from", from, "amount", amount)
		return nil
	})
}

// --- transfers -------------------------------------------------------

// moveFungible moves ownership of `amount` of a money kind from one
// agent to another: whole pieces change holder, the last piece is split
// when it exceeds what is left to move, and the receiver's pieces are
// coalesced afterward to bound fragmentation.
//
// No event is logged here; the public wrappers log their own kinds so
// that internal legs (deposit intake, withdrawal payout) do not
// masquerade as client transfers.
func (l *Ledger) moveFungible(op string, kind InstrumentKind, from, to AgentID, amount decimal.Decimal) error {
	if from == to {
		return &Error{Code: CodeInvalidInput, Op: op, Agent: from, Message: "self transfer"}
	}
	if !amount.IsPositive() {
		return &Error{Code: CodeInvalidInput, Op: op, Agent: from,
			Message: fmt.Sprintf("non-positive amount %s", amount)}
	}
	src, err := l.agent(op, from)
	if err != nil {
		return err
	}
	dst, err := l.agent(op, to)
	if err != nil {
		return err
	}
	if !l.policy.CanHold(dst.Kind, kind) {
		return &Error{Code: CodePolicyViolation, Op: op, Agent: to,
			Message: fmt.Sprintf("%s may not hold %s", dst.Kind, kind)}
	}

	pieces := l.holdings(src, kind)
	total := decimal.Zero
	for _, in := range pieces {
		total = total.Add(in.Amount)
	}
	if total.LessThan(amount) {
		return &Error{Code: CodeInsufficientFunds, Op: op, Agent: from,
			Message: fmt.Sprintf("have %s %s, need %s", total, kind, amount)}
	}

	remaining := amount
	for _, in := range pieces {
		if !remaining.IsPositive() {
			break
		}
		if in.Amount.IsZero() {
			continue
		}
		moved := in
		if in.Amount.GreaterThan(remaining) {
			twin, err := l.split(in, remaining)
			if err != nil {
				return err
			}
			moved = twin
		}
		l.changeHolder(moved, dst)
		remaining = remaining.Sub(moved.Amount)
	}

	return l.coalesce(dst, kind)
}

// changeHolder transfers ownership of a piece without re-creating its ID.
func (l *Ledger) changeHolder(in *Instrument, dst *Agent) {
	if holder, ok := l.state.agents[in.Holder]; ok {
		holder.detachAsset(in.ID)
	}
	in.Holder = dst.ID
	dst.attachAsset(in.ID)
}

// TransferCash moves cash between agents.
func (l *Ledger) TransferCash(from, to AgentID, amount decimal.Decimal) error {
	const op = "transfer_cash"
	return l.Transact(func() error {
		if err := l.moveFungible(op, CashKind, from, to, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvCashTransferred, From: from, To: to, Amount: amount, Denom: l.denom})
		l.logger.Info("cash transferred", "from", from, "to", to, "amount", amount)
		return nil
	})
}

// TransferReserves moves central-bank reserves between banks.
func (l *Ledger) TransferReserves(from, to AgentID, amount decimal.Decimal) error {
	const op = "transfer_reserves"
	return l.Transact(func() error {
		if err := l.moveFungible(op, ReservesKind, from, to, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvReservesTransferred, From: from, To: to, Amount: amount, Denom: l.denom})
		l.logger.Info("reserves transferred", "from", from, "to", to, "amount", amount)
		return nil
	})
}

// --- conversions -----------------------------------------------------

// ConvertReservesToCash atomically consumes a bank's reserves and mints
// cash in their place. The outstanding counters move in lock-step so the
// conversion conserves total central-bank money.
func (l *Ledger) ConvertReservesToCash(bank AgentID, amount decimal.Decimal) error {
	const op = "convert_reserves_to_cash"
	return l.Transact(func() error {
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: bank,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		a, err := l.agent(op, bank)
		if err != nil {
			return err
		}
		if err := l.spendDown(op, a, ReservesKind, amount); err != nil {
			return err
		}
		l.state.reservesOutstanding = l.state.reservesOutstanding.Sub(amount)
		if _, err := l.createMoney(op, CashKind, bank, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvReservesToCash, From: bank, To: bank, Amount: amount, Denom: l.denom})
		l.logger.Info("reserves converted to cash", "bank", bank, "amount", amount)
		return nil
	})
}

// ConvertCashToReserves atomically consumes a bank's cash and mints
// reserves in their place.
func (l *Ledger) ConvertCashToReserves(bank AgentID, amount decimal.Decimal) error {
	const op = "convert_cash_to_reserves"
	return l.Transact(func() error {
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: bank,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		a, err := l.agent(op, bank)
		if err != nil {
			return err
		}
		if err := l.spendDown(op, a, CashKind, amount); err != nil {
			return err
		}
		l.state.cashOutstanding = l.state.cashOutstanding.Sub(amount)
		if _, err := l.createMoney(op, ReservesKind, bank, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvCashToReserves, From: bank, To: bank, Amount: amount, Denom: l.denom})
		l.logger.Info("cash converted to reserves", "bank", bank, "amount", amount)
		return nil
	})
}

// --- deposits --------------------------------------------------------

// creditDeposit increases a customer's deposit at a bank, creating the
// instrument if none exists. The bank issues the deposit; policy gates
// both sides.
func (l *Ledger) creditDeposit(op string, customer, bank AgentID, amount decimal.Decimal) error {
	cust, err := l.agent(op, customer)
	if err != nil {
		return err
	}
	for _, in := range l.holdings(cust, DepositKind) {
		if in.Issuer == bank {
			in.Amount = in.Amount.Add(amount)
			return nil
		}
	}
	dep := &Instrument{
		ID:     l.ids.Next(),
		Kind:   DepositKind,
		Amount: amount,
		Denom:  l.denom,
		Holder: customer,
		Issuer: bank,
	}
	return l.register(op, dep)
}

// debitDeposit consumes `amount` from a customer's deposits at one bank.
func (l *Ledger) debitDeposit(op string, customer, bank AgentID, amount decimal.Decimal) error {
	cust, err := l.agent(op, customer)
	if err != nil {
		return err
	}
	var atBank []*Instrument
	total := decimal.Zero
	for _, in := range l.holdings(cust, DepositKind) {
		if in.Issuer == bank {
			atBank = append(atBank, in)
			total = total.Add(in.Amount)
		}
	}
	if total.LessThan(amount) {
		return &Error{Code: CodeInsufficientFunds, Op: op, Agent: customer,
			Message: fmt.Sprintf("have %s on deposit at %s, need %s", total, bank, amount)}
	}
	remaining := amount
	for _, in := range atBank {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, in.Amount)
		if !take.IsPositive() {
			continue
		}
		if err := l.consume(in, take); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return nil
}

// DepositCash hands a customer's cash to a bank in exchange for a
// deposit claim on that bank.
func (l *Ledger) DepositCash(customer, bank AgentID, amount decimal.Decimal) error {
	const op = "deposit_cash"
	return l.Transact(func() error {
		if err := l.moveFungible(op, CashKind, customer, bank, amount); err != nil {
			return err
		}
		if err := l.creditDeposit(op, customer, bank, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvCashDeposited, From: customer, To: bank, Amount: amount, Denom: l.denom})
		l.logger.Info("cash deposited", "customer", customer, "bank", bank, "amount", amount)
		return nil
	})
}

// WithdrawCash redeems a customer's deposit claim for the bank's cash.
// Fails with InsufficientFunds if either the deposit or the bank's till
// is short.
func (l *Ledger) WithdrawCash(customer, bank AgentID, amount decimal.Decimal) error {
	const op = "withdraw_cash"
	return l.Transact(func() error {
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: customer,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		if err := l.debitDeposit(op, customer, bank, amount); err != nil {
			return err
		}
		if err := l.moveFungible(op, CashKind, bank, customer, amount); err != nil {
			return err
		}
		l.LogEvent(Event{Kind: EvCashWithdrawn, From: bank, To: customer, Amount: amount, Denom: l.denom})
		l.logger.Info("cash withdrawn", "customer", customer, "bank", bank, "amount", amount)
		return nil
	})
}

// bankOfRecord returns the issuer of an agent's first deposit asset, or
// "" if the agent holds no deposits. Incoming deposit payments land at
// this bank.
func (l *Ledger) bankOfRecord(a *Agent) AgentID {
	deps := l.holdings(a, DepositKind)
	if len(deps) == 0 {
		return ""
	}
	return deps[0].Issuer
}

// PayByDeposit pays `to` from `from`'s bank deposits. Each debited piece
// produces a ClientPayment event carrying the debtor and creditor banks;
// Phase C nets the cross-bank ones into interbank obligations.
//
// The creditor is credited at their bank of record; a creditor with no
// deposits is credited at the debtor piece's bank (a same-bank leg).
func (l *Ledger) PayByDeposit(from, to AgentID, amount decimal.Decimal) error {
	const op = "pay_by_deposit"
	return l.Transact(func() error {
		if from == to {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: from, Message: "self transfer"}
		}
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: from,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		src, err := l.agent(op, from)
		if err != nil {
			return err
		}
		dst, err := l.agent(op, to)
		if err != nil {
			return err
		}
		if !l.policy.CanHold(dst.Kind, DepositKind) {
			return &Error{Code: CodePolicyViolation, Op: op, Agent: to,
				Message: fmt.Sprintf("%s may not hold %s", dst.Kind, DepositKind)}
		}

		pieces := l.holdings(src, DepositKind)
		total := decimal.Zero
		for _, in := range pieces {
			total = total.Add(in.Amount)
		}
		if total.LessThan(amount) {
			return &Error{Code: CodeInsufficientFunds, Op: op, Agent: from,
				Message: fmt.Sprintf("have %s on deposit, need %s", total, amount)}
		}

		remaining := amount
		for _, in := range pieces {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(remaining, in.Amount)
			if !take.IsPositive() {
				continue
			}
			debtorBank := in.Issuer
			creditBank := l.bankOfRecord(dst)
			if creditBank == "" {
				creditBank = debtorBank
			}
			if err := l.consume(in, take); err != nil {
				return err
			}
			if err := l.creditDeposit(op, to, creditBank, take); err != nil {
				return err
			}
			l.LogEvent(Event{Kind: EvClientPayment, From: from, To: to,
				FromBank: debtorBank, ToBank: creditBank, Amount: take, Denom: l.denom})
			remaining = remaining.Sub(take)
		}
		l.logger.Info("client payment", "from", from, "to", to, "amount", amount)
		return nil
	})
}

// --- obligations -----------------------------------------------------

// CreatePayable records a money obligation from debtor to creditor,
// optionally due on a specific day. A payable with no due day is never
// touched by Phase B.
func (l *Ledger) CreatePayable(debtor, creditor AgentID, amount decimal.Decimal, dueDay *int) (InstrumentID, error) {
	const op = "create_payable"
	var id InstrumentID
	err := l.Transact(func() error {
		if !amount.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: debtor,
				Message: fmt.Sprintf("non-positive amount %s", amount)}
		}
		in := &Instrument{
			ID:     l.ids.Next(),
			Kind:   PayableKind,
			Amount: amount,
			Denom:  l.denom,
			Holder: creditor,
			Issuer: debtor,
			DueDay: dueDay,
		}
		if err := l.register(op, in); err != nil {
			return err
		}
		id = in.ID
		l.logger.Info("payable created", "debtor", debtor, "creditor", creditor,
			"amount", amount, "instrument", in.ID)
		return nil
	})
	return id, err
}

// CreateDeliverable records a goods position. With holder == issuer it
// is self-held inventory; with distinct parties and a due day it is a
// delivery obligation for Phase B.
func (l *Ledger) CreateDeliverable(issuer, holder AgentID, sku string, quantity, unitPrice decimal.Decimal, divisible bool, dueDay *int) (InstrumentID, error) {
	const op = "create_deliverable"
	var id InstrumentID
	err := l.Transact(func() error {
		if !quantity.IsPositive() {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: issuer,
				Message: fmt.Sprintf("non-positive quantity %s", quantity)}
		}
		in := &Instrument{
			ID:        l.ids.Next(),
			Kind:      DeliverableKind,
			Amount:    quantity,
			Denom:     l.denom,
			Holder:    holder,
			Issuer:    issuer,
			DueDay:    dueDay,
			SKU:       sku,
			UnitPrice: unitPrice,
			Divisible: divisible,
		}
		if err := l.register(op, in); err != nil {
			return err
		}
		id = in.ID
		l.LogEvent(Event{Kind: EvDeliverableCreated, From: issuer, To: holder,
			Instrument: in.ID, Amount: quantity, SKU: sku})
		l.logger.Info("deliverable created", "issuer", issuer, "holder", holder,
			"sku", sku, "quantity", quantity, "instrument", in.ID)
		return nil
	})
	return id, err
}

// UpdateDeliverablePrice re-marks a deliverable's unit price.
func (l *Ledger) UpdateDeliverablePrice(id InstrumentID, price decimal.Decimal) error {
	const op = "update_deliverable_price"
	return l.Transact(func() error {
		in, err := l.instrumentRef(op, id)
		if err != nil {
			return err
		}
		if in.Kind != DeliverableKind {
			return &Error{Code: CodeInvalidInput, Op: op, Instrument: id,
				Message: fmt.Sprintf("%s is not a deliverable", in.Kind)}
		}
		if price.IsNegative() {
			return &Error{Code: CodeInvalidInput, Op: op, Instrument: id,
				Message: fmt.Sprintf("negative price %s", price)}
		}
		in.UnitPrice = price
		l.LogEvent(Event{Kind: EvDeliverablePriceUpdated, Instrument: id, Amount: price, SKU: in.SKU})
		return nil
	})
}

// TransferDeliverable moves goods (whole or a divisible part) from the
// current holder to another agent. Returns the ID of the moved piece,
// which is a fresh twin when a partial quantity was split off.
func (l *Ledger) TransferDeliverable(id InstrumentID, from, to AgentID, quantity *decimal.Decimal) (InstrumentID, error) {
	const op = "transfer_deliverable"
	var movedID InstrumentID
	err := l.Transact(func() error {
		in, err := l.instrumentRef(op, id)
		if err != nil {
			return err
		}
		if in.Kind != DeliverableKind {
			return &Error{Code: CodeInvalidInput, Op: op, Instrument: id,
				Message: fmt.Sprintf("%s is not a deliverable", in.Kind)}
		}
		if in.Holder != from {
			return &Error{Code: CodeHolderMismatch, Op: op, Agent: from, Instrument: id,
				Message: fmt.Sprintf("held by %s", in.Holder)}
		}
		if from == to {
			return &Error{Code: CodeInvalidInput, Op: op, Agent: from, Message: "self transfer"}
		}
		dst, err := l.agent(op, to)
		if err != nil {
			return err
		}
		if !l.policy.CanHold(dst.Kind, DeliverableKind) {
			return &Error{Code: CodePolicyViolation, Op: op, Agent: to,
				Message: fmt.Sprintf("%s may not hold %s", dst.Kind, DeliverableKind)}
		}

		moved := in
		qty := in.Amount
		if quantity != nil && !quantity.Equal(in.Amount) {
			qty = *quantity
			if !qty.IsPositive() || qty.GreaterThan(in.Amount) {
				return &Error{Code: CodeInvalidInput, Op: op, Instrument: id,
					Message: fmt.Sprintf("quantity %s out of range (have %s)", qty, in.Amount)}
			}
			if !in.Divisible {
				return &Error{Code: CodeInvalidInput, Op: op, Instrument: id,
					Message: fmt.Sprintf("indivisible %s cannot be partially transferred", in.SKU)}
			}
			twin, err := l.split(in, qty)
			if err != nil {
				return err
			}
			moved = twin
		}
		l.changeHolder(moved, dst)
		movedID = moved.ID
		l.LogEvent(Event{Kind: EvDeliverableTransferred, From: from, To: to,
			Instrument: moved.ID, Amount: qty, SKU: moved.SKU})
		l.logger.Info("deliverable transferred", "from", from, "to", to,
			"sku", moved.SKU, "quantity", qty, "instrument", moved.ID)
		return nil
	})
	return movedID, err
}

// SettleObligation unconditionally detaches and deletes an instrument
// once its real-world counterpart has been honored. The cross-reference
// check is a corruption guard, not validation: failure means a prior
// invariant breach and is never auto-corrected.
func (l *Ledger) SettleObligation(id InstrumentID) error {
	const op = "settle_obligation"
	return l.Transact(func() error {
		in, err := l.instrumentRef(op, id)
		if err != nil {
			return err
		}
		holder, err := l.agent(op, in.Holder)
		if err != nil {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("holder %s missing from registry", in.Holder)}
		}
		issuer, err := l.agent(op, in.Issuer)
		if err != nil {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("issuer %s missing from registry", in.Issuer)}
		}
		if !holder.holdsAsset(id) || !issuer.owesLiability(id) {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: "instrument not cross-referenced by holder and issuer"}
		}
		l.drop(in)
		l.LogEvent(Event{Kind: EvObligationSettled, From: in.Issuer, To: in.Holder,
			Instrument: id, Amount: in.Amount, SKU: in.SKU})
		l.logger.Info("obligation settled", "instrument", id)
		return nil
	})
}

// --- due-obligation scans (consumed by Phase B) ----------------------

// PayablesDue returns copies of the payables whose due day equals `day`,
// in instrument-ID order. Payables with no due day are never reported.
func (l *Ledger) PayablesDue(day int) []Instrument {
	var out []Instrument
	for _, id := range l.state.sortedInstrumentIDs() {
		in := l.state.instruments[id]
		if in.Kind == PayableKind && in.DueDay != nil && *in.DueDay == day {
			out = append(out, *in.clone())
		}
	}
	return out
}

// DeliverablesDue returns copies of the delivery obligations due on
// `day`, in instrument-ID order. Self-held inventory (holder == issuer)
// is stock, not an obligation, and is excluded.
func (l *Ledger) DeliverablesDue(day int) []Instrument {
	var out []Instrument
	for _, id := range l.state.sortedInstrumentIDs() {
		in := l.state.instruments[id]
		if in.Kind == DeliverableKind && in.DueDay != nil && *in.DueDay == day && in.Holder != in.Issuer {
			out = append(out, *in.clone())
		}
	}
	return out
}

// StockOf returns copies of the deliverable pieces of one SKU held by an
// agent, excluding the given obligation, in asset-list order.
func (l *Ledger) StockOf(holder AgentID, sku string, excluding InstrumentID) []Instrument {
	a, ok := l.state.agents[holder]
	if !ok {
		return nil
	}
	var out []Instrument
	for _, in := range l.holdings(a, DeliverableKind) {
		if in.SKU == sku && in.ID != excluding {
			out = append(out, *in.clone())
		}
	}
	return out
}

// --- invariants ------------------------------------------------------

// AssertInvariants runs a full consistency scan:
//
//	(a) every instrument is cross-referenced in exactly the holder's
//	    asset list and the issuer's liability list,
//	(b) no agent lists an ID twice, and every listed ID resolves to a
//	    live instrument in the matching role,
//	(c) outstanding cash/reserve counters equal the sum of live
//	    instruments of that kind,
//	(d) no instrument amount is negative.
//
// Run after every operation in tests and at checkpoints in production
// use. A non-nil result means a programming defect, not a domain outcome.
func (l *Ledger) AssertInvariants() error {
	const op = "assert_invariants"
	cashSum := decimal.Zero
	reserveSum := decimal.Zero

	for _, id := range l.state.sortedInstrumentIDs() {
		in := l.state.instruments[id]
		if in.Amount.IsNegative() {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("negative amount %s", in.Amount)}
		}
		holder, ok := l.state.agents[in.Holder]
		if !ok {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("holder %s not registered", in.Holder)}
		}
		issuer, ok := l.state.agents[in.Issuer]
		if !ok {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("issuer %s not registered", in.Issuer)}
		}
		if n := count(holder.Assets, id); n != 1 {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("appears %d times in holder %s assets, want 1", n, holder.ID)}
		}
		if n := count(issuer.Liabilities, id); n != 1 {
			return &Error{Code: CodeInconsistent, Op: op, Instrument: id,
				Message: fmt.Sprintf("appears %d times in issuer %s liabilities, want 1", n, issuer.ID)}
		}
		switch in.Kind {
		case CashKind:
			cashSum = cashSum.Add(in.Amount)
		case ReservesKind:
			reserveSum = reserveSum.Add(in.Amount)
		}
	}

	for _, aid := range l.state.sortedAgentIDs() {
		a := l.state.agents[aid]
		if err := l.checkReferences(op, a, a.Assets, true); err != nil {
			return err
		}
		if err := l.checkReferences(op, a, a.Liabilities, false); err != nil {
			return err
		}
	}

	if !cashSum.Equal(l.state.cashOutstanding) {
		return &Error{Code: CodeInconsistent, Op: op,
			Message: fmt.Sprintf("cash outstanding %s != live sum %s", l.state.cashOutstanding, cashSum)}
	}
	if !reserveSum.Equal(l.state.reservesOutstanding) {
		return &Error{Code: CodeInconsistent, Op: op,
			Message: fmt.Sprintf("reserves outstanding %s != live sum %s", l.state.reservesOutstanding, reserveSum)}
	}
	return nil
}

// checkReferences verifies one side of an agent's collections: no
// duplicates, all IDs live, and the instrument points back at the agent
// in the matching role.
func (l *Ledger) checkReferences(op string, a *Agent, ids []InstrumentID, asset bool) error {
	seen := make(map[InstrumentID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return &Error{Code: CodeInconsistent, Op: op, Agent: a.ID, Instrument: id,
				Message: "duplicate reference"}
		}
		seen[id] = true
		in, ok := l.state.instruments[id]
		if !ok {
			return &Error{Code: CodeInconsistent, Op: op, Agent: a.ID, Instrument: id,
				Message: "reference to dead instrument"}
		}
		if asset && in.Holder != a.ID {
			return &Error{Code: CodeInconsistent, Op: op, Agent: a.ID, Instrument: id,
				Message: fmt.Sprintf("listed as asset but held by %s", in.Holder)}
		}
		if !asset && in.Issuer != a.ID {
			return &Error{Code: CodeInconsistent, Op: op, Agent: a.ID, Instrument: id,
				Message: fmt.Sprintf("listed as liability but issued by %s", in.Issuer)}
		}
	}
	return nil
}

func count(ids []InstrumentID, id InstrumentID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}
