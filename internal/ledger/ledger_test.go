package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable mirrors the default policy table without importing the
// policy package (which depends on this one).
type testTable struct{}

func (testTable) CanIssue(a AgentKind, k InstrumentKind) bool {
	switch k {
	case CashKind, ReservesKind:
		return a == CentralBank
	case DepositKind:
		return a == Bank
	default:
		return true
	}
}

func (testTable) CanHold(a AgentKind, k InstrumentKind) bool {
	switch k {
	case ReservesKind:
		return a == CentralBank || a == Bank || a == Treasury
	case DepositKind:
		return a == Household || a == Firm || a == Treasury
	default:
		return true
	}
}

func (testTable) SettlementOrder(a AgentKind) []SettlementMethod {
	switch a {
	case Household, Firm:
		return []SettlementMethod{MethodDeposit, MethodCash}
	case Treasury:
		return []SettlementMethod{MethodDeposit, MethodReserves, MethodCash}
	default:
		return []SettlementMethod{MethodReserves}
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestLedger creates a ledger with the default agent roster: a
// central bank, two commercial banks, a household, and a firm.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(testTable{}, WithIDGenerator(NewSequentialGenerator("i")))
	for _, a := range []Agent{
		{ID: "fed", Kind: CentralBank},
		{ID: "b1", Kind: Bank},
		{ID: "b2", Kind: Bank},
		{ID: "h1", Kind: Household},
		{ID: "f1", Kind: Firm},
	} {
		require.NoError(t, l.AddAgent(a))
	}
	return l
}

func requireTotal(t *testing.T, l *Ledger, agent AgentID, kind InstrumentKind, want string) {
	t.Helper()
	total, err := l.HoldingsTotal(agent, kind)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec(want)), "%s %s: got %s, want %s", agent, kind, total, want)
}

func TestAddAgent_DuplicateID(t *testing.T) {
	l := newTestLedger(t)

	err := l.AddAgent(Agent{ID: "h1", Kind: Household})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestAddAgent_SecondCentralBank(t *testing.T) {
	l := newTestLedger(t)

	err := l.AddAgent(Agent{ID: "ecb", Kind: CentralBank})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
	assert.Contains(t, err.Error(), "fed")
}

func TestMintCash_CreatesHolding(t *testing.T) {
	l := newTestLedger(t)

	id, err := l.MintCash("h1", dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, InstrumentID("i-1"), id)

	requireTotal(t, l, "h1", CashKind, "1000")
	assert.True(t, l.CashOutstanding().Equal(dec("1000")))

	in, err := l.Instrument(id)
	require.NoError(t, err)
	assert.Equal(t, AgentID("fed"), in.Issuer)
	assert.Equal(t, "USD", in.Denom)

	events := l.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EvCashMinted, events[0].Kind)
	assert.Equal(t, int64(1), events[0].Seq)

	require.NoError(t, l.AssertInvariants())
}

func TestMintCash_NonPositiveAmount(t *testing.T) {
	l := newTestLedger(t)

	for _, amount := range []string{"0", "-5"} {
		_, err := l.MintCash("h1", dec(amount))
		require.Error(t, err, "amount %s", amount)
		assert.Equal(t, CodeInvalidInput, CodeOf(err))
	}
	assert.Empty(t, l.Events())
}

func TestMintReserves_HolderGatedByPolicy(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.MintReserves("h1", dec("100"))
	require.Error(t, err)
	assert.True(t, IsPolicyViolation(err))

	// Nothing of the failed mint survives.
	assert.Empty(t, l.Events())
	require.NoError(t, l.AssertInvariants())
}

func TestTransferCash_SplitsAndCoalesces(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("50"))
	require.NoError(t, err)
	_, err = l.MintCash("h1", dec("30"))
	require.NoError(t, err)

	require.NoError(t, l.TransferCash("h1", "f1", dec("60")))

	requireTotal(t, l, "h1", CashKind, "20")
	requireTotal(t, l, "f1", CashKind, "60")

	// The receiver's pieces are coalesced into one.
	pieces, err := l.Holdings("f1", CashKind)
	require.NoError(t, err)
	assert.Len(t, pieces, 1)

	assert.True(t, l.CashOutstanding().Equal(dec("80")))
	require.NoError(t, l.AssertInvariants())
}

func TestTransferCash_InsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("10"))
	require.NoError(t, err)

	err = l.TransferCash("h1", "f1", dec("11"))
	require.Error(t, err)
	assert.True(t, IsInsufficientFunds(err))

	// Failed transfer left both sides untouched.
	requireTotal(t, l, "h1", CashKind, "10")
	requireTotal(t, l, "f1", CashKind, "0")
	require.NoError(t, l.AssertInvariants())
}

func TestTransferCash_SelfTransfer(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("10"))
	require.NoError(t, err)

	err = l.TransferCash("h1", "h1", dec("5"))
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestRetireCash_DecrementsOutstanding(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("100"))
	require.NoError(t, err)

	require.NoError(t, l.RetireCash("h1", dec("40")))
	requireTotal(t, l, "h1", CashKind, "60")
	assert.True(t, l.CashOutstanding().Equal(dec("60")))

	err = l.RetireCash("h1", dec("100"))
	require.Error(t, err)
	assert.True(t, IsInsufficientFunds(err))
	assert.True(t, l.CashOutstanding().Equal(dec("60")))

	require.NoError(t, l.AssertInvariants())
}

func TestConvertReservesToCash_CountersMoveInLockStep(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintReserves("b1", dec("100"))
	require.NoError(t, err)

	require.NoError(t, l.ConvertReservesToCash("b1", dec("40")))

	requireTotal(t, l, "b1", ReservesKind, "60")
	requireTotal(t, l, "b1", CashKind, "40")
	assert.True(t, l.ReservesOutstanding().Equal(dec("60")))
	assert.True(t, l.CashOutstanding().Equal(dec("40")))

	require.NoError(t, l.ConvertCashToReserves("b1", dec("40")))
	assert.True(t, l.ReservesOutstanding().Equal(dec("100")))
	assert.True(t, l.CashOutstanding().Equal(dec("0")))

	require.NoError(t, l.AssertInvariants())
}

func TestDepositCash_RoundTrip(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("1000"))
	require.NoError(t, err)

	require.NoError(t, l.DepositCash("h1", "b1", dec("600")))

	requireTotal(t, l, "h1", CashKind, "400")
	requireTotal(t, l, "h1", DepositKind, "600")
	requireTotal(t, l, "b1", CashKind, "600")

	// The bank owes the deposit.
	b1, err := l.Agent("b1")
	require.NoError(t, err)
	assert.Len(t, b1.Liabilities, 1)

	tb := l.TrialBalance()
	assert.True(t, tb.Assets.Equal(dec("1600")))
	assert.True(t, tb.Balanced())

	require.NoError(t, l.WithdrawCash("h1", "b1", dec("600")))
	requireTotal(t, l, "h1", CashKind, "1000")
	requireTotal(t, l, "h1", DepositKind, "0")
	require.NoError(t, l.AssertInvariants())
}

func TestWithdrawCash_BankTillShort(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("600"))
	require.NoError(t, err)
	require.NoError(t, l.DepositCash("h1", "b1", dec("600")))

	// Drain the till: the deposit claim outlives the bank's cash.
	require.NoError(t, l.TransferCash("b1", "fed", dec("600")))

	err = l.WithdrawCash("h1", "b1", dec("100"))
	require.Error(t, err)
	assert.True(t, IsInsufficientFunds(err))

	// The deposit was not debited.
	requireTotal(t, l, "h1", DepositKind, "600")
	require.NoError(t, l.AssertInvariants())
}

func TestPayByDeposit_SameBankLeg(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("300"))
	require.NoError(t, err)
	_, err = l.MintCash("f1", dec("100"))
	require.NoError(t, err)
	require.NoError(t, l.DepositCash("h1", "b1", dec("300")))
	require.NoError(t, l.DepositCash("f1", "b1", dec("100")))

	require.NoError(t, l.PayByDeposit("h1", "f1", dec("200")))

	requireTotal(t, l, "h1", DepositKind, "100")
	requireTotal(t, l, "f1", DepositKind, "300")

	events := l.Events()
	last := events[len(events)-1]
	assert.Equal(t, EvClientPayment, last.Kind)
	assert.Equal(t, AgentID("b1"), last.FromBank)
	assert.Equal(t, AgentID("b1"), last.ToBank)
	require.NoError(t, l.AssertInvariants())
}

func TestPayByDeposit_CrossBankLeg(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("300"))
	require.NoError(t, err)
	_, err = l.MintCash("f1", dec("100"))
	require.NoError(t, err)
	require.NoError(t, l.DepositCash("h1", "b1", dec("300")))
	require.NoError(t, l.DepositCash("f1", "b2", dec("100")))

	require.NoError(t, l.PayByDeposit("h1", "f1", dec("200")))

	// The creditor is credited at their bank of record.
	deps, err := l.Holdings("f1", DepositKind)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, AgentID("b2"), deps[0].Issuer)
	assert.True(t, deps[0].Amount.Equal(dec("300")))

	events := l.Events()
	last := events[len(events)-1]
	assert.Equal(t, EvClientPayment, last.Kind)
	assert.Equal(t, AgentID("b1"), last.FromBank)
	assert.Equal(t, AgentID("b2"), last.ToBank)
	require.NoError(t, l.AssertInvariants())
}

func TestPayByDeposit_CreditorWithoutDeposits(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("300"))
	require.NoError(t, err)
	require.NoError(t, l.DepositCash("h1", "b1", dec("300")))

	require.NoError(t, l.PayByDeposit("h1", "f1", dec("50")))

	// With no bank of record, the credit lands at the debtor's bank.
	deps, err := l.Holdings("f1", DepositKind)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, AgentID("b1"), deps[0].Issuer)
	require.NoError(t, l.AssertInvariants())
}

func TestTransact_RollbackRestoresStateButNotClock(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("100"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = l.Transact(func() error {
		if _, err := l.MintCash("h1", dec("50")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// State rolled back wholesale.
	requireTotal(t, l, "h1", CashKind, "100")
	assert.True(t, l.CashOutstanding().Equal(dec("100")))
	require.Len(t, l.Events(), 1)

	// The clock does not roll back: the next event skips the seq the
	// rolled-back mint consumed.
	_, err = l.MintCash("h1", dec("25"))
	require.NoError(t, err)
	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
	require.NoError(t, l.AssertInvariants())
}

func TestCreatePayable_RegistersWithoutEvent(t *testing.T) {
	l := newTestLedger(t)
	due := 5

	id, err := l.CreatePayable("h1", "f1", dec("150"), &due)
	require.NoError(t, err)
	assert.Empty(t, l.Events())

	in, err := l.Instrument(id)
	require.NoError(t, err)
	assert.Equal(t, PayableKind, in.Kind)
	assert.Equal(t, AgentID("f1"), in.Holder)
	assert.Equal(t, AgentID("h1"), in.Issuer)

	due5 := l.PayablesDue(5)
	require.Len(t, due5, 1)
	assert.Equal(t, id, due5[0].ID)
	assert.Empty(t, l.PayablesDue(4))
	require.NoError(t, l.AssertInvariants())
}

func TestPayablesDue_SortedByID(t *testing.T) {
	l := newTestLedger(t)
	due := 3
	_, err := l.CreatePayable("h1", "f1", dec("10"), &due)
	require.NoError(t, err)
	_, err = l.CreatePayable("f1", "h1", dec("20"), &due)
	require.NoError(t, err)
	_, err = l.CreatePayable("h1", "f1", dec("30"), nil) // never due
	require.NoError(t, err)

	got := l.PayablesDue(3)
	require.Len(t, got, 2)
	assert.Equal(t, InstrumentID("i-1"), got[0].ID)
	assert.Equal(t, InstrumentID("i-2"), got[1].ID)
}

func TestSettleObligation_RemovesBothSides(t *testing.T) {
	l := newTestLedger(t)
	due := 1
	id, err := l.CreatePayable("h1", "f1", dec("150"), &due)
	require.NoError(t, err)

	require.NoError(t, l.SettleObligation(id))

	_, err = l.Instrument(id)
	assert.True(t, IsNotFound(err))

	h1, err := l.Agent("h1")
	require.NoError(t, err)
	assert.Empty(t, h1.Liabilities)
	f1, err := l.Agent("f1")
	require.NoError(t, err)
	assert.Empty(t, f1.Assets)

	// Settling again is an error, not a silent no-op.
	err = l.SettleObligation(id)
	assert.True(t, IsNotFound(err))
	require.NoError(t, l.AssertInvariants())
}

func TestDeliverablesDue_ExcludesInventory(t *testing.T) {
	l := newTestLedger(t)
	due := 2

	// Obligation: f1 owes h1 delivery.
	_, err := l.CreateDeliverable("f1", "h1", "widget", dec("5"), dec("10"), true, &due)
	require.NoError(t, err)
	// Inventory: self-held stock with the same due day is not an obligation.
	_, err = l.CreateDeliverable("f1", "f1", "widget", dec("100"), dec("10"), true, &due)
	require.NoError(t, err)

	got := l.DeliverablesDue(2)
	require.Len(t, got, 1)
	assert.Equal(t, AgentID("h1"), got[0].Holder)
}

func TestTransferDeliverable_PartialSplitsTwin(t *testing.T) {
	l := newTestLedger(t)
	id, err := l.CreateDeliverable("f1", "f1", "widget", dec("10"), dec("3"), true, nil)
	require.NoError(t, err)

	qty := dec("4")
	movedID, err := l.TransferDeliverable(id, "f1", "h1", &qty)
	require.NoError(t, err)
	assert.NotEqual(t, id, movedID)

	orig, err := l.Instrument(id)
	require.NoError(t, err)
	assert.True(t, orig.Amount.Equal(dec("6")))

	moved, err := l.Instrument(movedID)
	require.NoError(t, err)
	assert.Equal(t, AgentID("h1"), moved.Holder)
	assert.Equal(t, AgentID("f1"), moved.Issuer)
	assert.True(t, moved.Amount.Equal(dec("4")))
	require.NoError(t, l.AssertInvariants())
}

func TestTransferDeliverable_IndivisiblePartial(t *testing.T) {
	l := newTestLedger(t)
	id, err := l.CreateDeliverable("f1", "f1", "machine", dec("1"), dec("5000"), false, nil)
	require.NoError(t, err)

	qty := dec("0.5")
	_, err = l.TransferDeliverable(id, "f1", "h1", &qty)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	// A whole transfer is fine.
	movedID, err := l.TransferDeliverable(id, "f1", "h1", nil)
	require.NoError(t, err)
	assert.Equal(t, id, movedID)
}

func TestTransferDeliverable_HolderMismatch(t *testing.T) {
	l := newTestLedger(t)
	id, err := l.CreateDeliverable("f1", "f1", "widget", dec("10"), dec("3"), true, nil)
	require.NoError(t, err)

	_, err = l.TransferDeliverable(id, "h1", "b1", nil)
	require.Error(t, err)
	assert.Equal(t, CodeHolderMismatch, CodeOf(err))
}

func TestUpdateDeliverablePrice_WrongKind(t *testing.T) {
	l := newTestLedger(t)
	id, err := l.MintCash("h1", dec("100"))
	require.NoError(t, err)

	err = l.UpdateDeliverablePrice(id, dec("2"))
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestStockOf_ExcludesObligation(t *testing.T) {
	l := newTestLedger(t)
	due := 1
	oblig, err := l.CreateDeliverable("f1", "h1", "widget", dec("5"), dec("10"), true, &due)
	require.NoError(t, err)
	_, err = l.CreateDeliverable("f1", "f1", "widget", dec("100"), dec("10"), true, nil)
	require.NoError(t, err)

	// f1 has its inventory, not the obligation it issued.
	stock := l.StockOf("f1", "widget", oblig)
	require.Len(t, stock, 1)
	assert.True(t, stock[0].Amount.Equal(dec("100")))

	assert.Empty(t, l.StockOf("f1", "gadget", oblig))
}

func TestAgents_SortedCopies(t *testing.T) {
	l := newTestLedger(t)

	agents := l.Agents()
	require.Len(t, agents, 5)
	assert.Equal(t, AgentID("b1"), agents[0].ID)
	assert.Equal(t, AgentID("fed"), agents[3].ID)

	// Mutating the copy must not touch ledger state.
	agents[0].Assets = append(agents[0].Assets, "bogus")
	fresh, err := l.Agent("b1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Assets)
}
