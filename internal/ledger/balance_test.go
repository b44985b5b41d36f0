package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAgentBalance_CashCycle mirrors the canonical cash cycle: mint 1000
// to the household, deposit 600 at the bank, then read the sheets.
func TestAgentBalance_CashCycle(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("h1", dec("1000"))
	require.NoError(t, err)
	require.NoError(t, l.DepositCash("h1", "b1", dec("600")))

	h1, err := l.AgentBalance("h1")
	require.NoError(t, err)
	assert.True(t, h1.Assets[CashKind].Equal(dec("400")))
	assert.True(t, h1.Assets[DepositKind].Equal(dec("600")))
	assert.Empty(t, h1.Liabilities)
	assert.True(t, h1.AssetTotal().Equal(dec("1000")))

	b1, err := l.AgentBalance("b1")
	require.NoError(t, err)
	assert.True(t, b1.Assets[CashKind].Equal(dec("600")))
	assert.True(t, b1.Liabilities[DepositKind].Equal(dec("600")))

	fed, err := l.AgentBalance("fed")
	require.NoError(t, err)
	assert.True(t, fed.Liabilities[CashKind].Equal(dec("1000")))

	tb := l.TrialBalance()
	assert.True(t, tb.Assets.Equal(dec("1600")))
	assert.True(t, tb.Liabilities.Equal(dec("1600")))
	assert.True(t, tb.Balanced())
}

func TestBalance_FinancialSplit(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.MintCash("f1", dec("100"))
	require.NoError(t, err)
	_, err = l.CreateDeliverable("f1", "f1", "widget", dec("40"), dec("1"), true, nil)
	require.NoError(t, err)

	b, err := l.AgentBalance("f1")
	require.NoError(t, err)
	assert.True(t, b.FinancialAssets().Equal(dec("100")))
	assert.True(t, b.NonFinancialAssets().Equal(dec("40")))
	assert.True(t, b.AssetTotal().Equal(dec("140")))
}

func TestAgentBalance_UnknownAgent(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AgentBalance("nobody")
	assert.True(t, IsNotFound(err))
}
