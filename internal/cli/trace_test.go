package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensimfi/daybook/internal/scenario"
)

// runScenarioFile executes a testdata scenario and returns its event
// trace rendered one line per event.
func runScenarioFile(t *testing.T, name string) string {
	t.Helper()
	sc, err := scenario.Load(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	r, err := scenario.NewRunner(sc)
	require.NoError(t, err)
	require.NoError(t, r.Run())
	return FormatEvents(r.Ledger.Events())
}

// TestTrace_GoldenTraces locks the full event trace of the reference
// scenarios. Deterministic IDs and seq numbers make the trace stable;
// any diff here is a semantic change, not noise.
func TestTrace_GoldenTraces(t *testing.T) {
	for _, name := range []string{"cash-cycle", "interbank-clearing"} {
		t.Run(name, func(t *testing.T) {
			trace := runScenarioFile(t, name)
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, name, []byte(trace))
		})
	}
}

// TestTrace_JournalRoundTrip archives a run, then reads it back through
// the trace command and checks it matches the live trace.
func TestTrace_JournalRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	// Archive the run.
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"run", "testdata/cash-cycle.yaml", "--journal", dbPath, "--format", "json"})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	runID, _ := data["run_id"].(string)
	require.NotEmpty(t, runID)

	// Read it back.
	var traced bytes.Buffer
	cmd = NewRootCommand()
	cmd.SetOut(&traced)
	cmd.SetErr(&traced)
	cmd.SetArgs([]string{"trace", "--journal", dbPath, runID})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, runScenarioFile(t, "cash-cycle"), traced.String())
}

func TestTrace_ListRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "testdata/cash-cycle.yaml", "--journal", dbPath})
	require.NoError(t, cmd.Execute())

	var out bytes.Buffer
	cmd = NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"trace", "--journal", dbPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "cash-cycle")
}
