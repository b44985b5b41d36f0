package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalances_TextOutput(t *testing.T) {
	out, err := execute(t, "balances", "testdata/cash-cycle.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "h1 (household)")
	assert.Contains(t, out, "b1 (bank)")
	// Thousands separators are display-only formatting.
	assert.Contains(t, out, "trial balance: assets 1,600.00 / liabilities 1,600.00")
}

func TestBalances_AgentFilter(t *testing.T) {
	out, err := execute(t, "balances", "testdata/cash-cycle.yaml", "--agent", "h1")
	require.NoError(t, err)
	assert.Contains(t, out, "h1 (household)")
	assert.NotContains(t, out, "b1 (bank)")
}

func TestBalances_UnknownAgent(t *testing.T) {
	_, err := execute(t, "balances", "testdata/cash-cycle.yaml", "--agent", "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBalances_JSONOutput(t *testing.T) {
	out, err := execute(t, "balances", "testdata/cash-cycle.yaml", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	sheets, ok := resp.Data.([]any)
	require.True(t, ok)
	require.NotEmpty(t, sheets)

	byAgent := make(map[string]map[string]any)
	for _, s := range sheets {
		m := s.(map[string]any)
		byAgent[m["agent"].(string)] = m
	}
	h1, ok := byAgent["h1"]
	require.True(t, ok)
	assets := h1["assets"].(map[string]any)
	assert.Equal(t, "400", assets["cash"])
	assert.Equal(t, "600", assets["bank_deposit"])
	assert.Equal(t, "1000", h1["net"])
}
