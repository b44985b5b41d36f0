package scenario

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensimfi/daybook/internal/engine"
	"github.com/opensimfi/daybook/internal/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func loadRunner(t *testing.T, path string, opts ...RunnerOption) *Runner {
	t.Helper()
	sc, err := Load(path)
	require.NoError(t, err)
	r, err := NewRunner(sc, opts...)
	require.NoError(t, err)
	return r
}

func TestRunner_CashCycle(t *testing.T) {
	r := loadRunner(t, "testdata/cash-cycle.yaml")
	require.NoError(t, r.Run())

	b, err := r.Ledger.AgentBalance("h1")
	require.NoError(t, err)
	assert.True(t, b.Assets[ledger.CashKind].Equal(dec("400")))
	assert.True(t, b.Assets[ledger.DepositKind].Equal(dec("600")))

	bank, err := r.Ledger.AgentBalance("b1")
	require.NoError(t, err)
	assert.True(t, bank.Assets[ledger.CashKind].Equal(dec("600")))
	assert.True(t, bank.Liabilities[ledger.DepositKind].Equal(dec("600")))

	tb := r.Ledger.TrialBalance()
	assert.True(t, tb.Assets.Equal(dec("1600")))
	assert.True(t, tb.Balanced())

	assert.Equal(t, 1, r.Ledger.Day())
	require.NoError(t, r.Ledger.AssertInvariants())
}

func TestRunner_DefaultWaterfall(t *testing.T) {
	r := loadRunner(t, "testdata/default-waterfall.yaml", WithContinueOnDefault())

	err := r.Run()
	require.Error(t, err)
	assert.True(t, engine.AllDefaults(err))
	assert.Contains(t, err.Error(), "50 still owed")

	// The payable survives the default with its amount intact.
	due := r.Ledger.PayablesDue(5)
	require.Len(t, due, 1)
	assert.True(t, due[0].Amount.Equal(dec("150")))

	// Nothing partially moved.
	deposits, err := r.Ledger.HoldingsTotal("h1", ledger.DepositKind)
	require.NoError(t, err)
	assert.True(t, deposits.Equal(dec("60")))
	cash, err := r.Ledger.HoldingsTotal("h1", ledger.CashKind)
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("40")))
	require.NoError(t, r.Ledger.AssertInvariants())
}

func TestRunner_DefaultWaterfall_FailFastStops(t *testing.T) {
	r := loadRunner(t, "testdata/default-waterfall.yaml")

	err := r.Run()
	require.Error(t, err)
	assert.True(t, engine.IsDefault(err))

	// The fail-fast driver stopped on day 5 without advancing.
	assert.Equal(t, 5, r.Ledger.Day())
}

func TestRunner_InterbankClearing(t *testing.T) {
	r := loadRunner(t, "testdata/interbank-clearing.yaml")
	require.NoError(t, r.Run())

	b1, err := r.Ledger.HoldingsTotal("b1", ledger.ReservesKind)
	require.NoError(t, err)
	assert.True(t, b1.Equal(dec("30")))
	b2, err := r.Ledger.HoldingsTotal("b2", ledger.ReservesKind)
	require.NoError(t, err)
	assert.True(t, b2.Equal(dec("70")))

	cleared := 0
	for _, e := range r.Ledger.Events() {
		if e.Kind == ledger.EvInterbankCleared {
			cleared++
			assert.Equal(t, ledger.AgentID("b1"), e.From)
			assert.Equal(t, ledger.AgentID("b2"), e.To)
			assert.True(t, e.Amount.Equal(dec("70")))
		}
	}
	assert.Equal(t, 1, cleared)
	require.NoError(t, r.Ledger.AssertInvariants())
}

func TestRunner_DeterministicTraces(t *testing.T) {
	run := func() []ledger.Event {
		r := loadRunner(t, "testdata/interbank-clearing.yaml")
		require.NoError(t, r.Run())
		return r.Ledger.Events()
	}
	assert.Equal(t, run(), run())
}

func TestNewRunner_UnknownAgentKind(t *testing.T) {
	// The CUE schema catches bad kinds in files; a hand-built scenario
	// still fails cleanly in the runner.
	sc := &Scenario{
		Name:   "bad",
		Days:   1,
		Agents: []AgentDecl{{ID: "x", Kind: "hedge_fund"}},
	}
	_, err := NewRunner(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hedge_fund")
}

func TestNewRunner_SetupFailureNamesStep(t *testing.T) {
	sc := &Scenario{
		Name: "bad-setup",
		Days: 1,
		Agents: []AgentDecl{
			{ID: "fed", Kind: "central_bank"},
			{ID: "h1", Kind: "household"},
		},
		Setup: []Step{
			{Op: "mint_cash", To: "h1", Amount: "100"},
			{Op: "transfer_cash", From: "h1", To: "fed", Amount: "500"},
		},
	}
	_, err := NewRunner(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 2 (transfer_cash)")
	assert.True(t, ledger.IsInsufficientFunds(err))
}

func TestRunner_CustomPolicyFromScenario(t *testing.T) {
	src := []byte(`
name: narrow-policy
agents:
  - id: fed
    kind: central_bank
  - id: h1
    kind: household
policy:
  issuers:
    cash: [central_bank]
  holders:
    cash: [central_bank]
setup:
  - op: mint_cash
    to: h1
    amount: "10"
`)
	sc, err := Parse("narrow-policy.yaml", src)
	require.NoError(t, err)

	// The inline policy forbids households from holding cash, so setup fails.
	_, err = NewRunner(sc)
	require.Error(t, err)
	assert.True(t, ledger.IsPolicyViolation(err))
}
