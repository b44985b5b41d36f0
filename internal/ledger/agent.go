package ledger

import (
	"fmt"
	"slices"
)

// AgentKind is the closed set of economic actor types.
type AgentKind int

const (
	CentralBank AgentKind = iota
	Bank
	Household
	Firm
	Treasury
)

var agentKindNames = map[AgentKind]string{
	CentralBank: "central_bank",
	Bank:        "bank",
	Household:   "household",
	Firm:        "firm",
	Treasury:    "treasury",
}

// String returns the snake_case name used in config files and event output.
func (k AgentKind) String() string {
	if s, ok := agentKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("AgentKind(%d)", int(k))
}

// ParseAgentKind maps a config string to its AgentKind.
func ParseAgentKind(s string) (AgentKind, error) {
	for k, name := range agentKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown agent kind %q", s)
}

// Agent is an economic actor. It holds assets and owes liabilities, both
// as ordered lists of instrument IDs. The lists are mutated only by the
// ledger's attach/detach operations; an ID never appears twice in either.
//
// Agents are created once at setup and never deleted during a run.
type Agent struct {
	ID          AgentID
	Name        string
	Kind        AgentKind
	Assets      []InstrumentID
	Liabilities []InstrumentID
}

// clone returns a deep copy for state snapshots.
func (a *Agent) clone() *Agent {
	return &Agent{
		ID:          a.ID,
		Name:        a.Name,
		Kind:        a.Kind,
		Assets:      slices.Clone(a.Assets),
		Liabilities: slices.Clone(a.Liabilities),
	}
}

// holdsAsset reports whether id is in the agent's asset list.
func (a *Agent) holdsAsset(id InstrumentID) bool {
	return slices.Contains(a.Assets, id)
}

// owesLiability reports whether id is in the agent's liability list.
func (a *Agent) owesLiability(id InstrumentID) bool {
	return slices.Contains(a.Liabilities, id)
}

// attachAsset appends id to the asset list. The no-duplicate invariant is
// the caller's responsibility (checked wholesale by AssertInvariants).
func (a *Agent) attachAsset(id InstrumentID) {
	a.Assets = append(a.Assets, id)
}

func (a *Agent) attachLiability(id InstrumentID) {
	a.Liabilities = append(a.Liabilities, id)
}

// detachAsset removes id from the asset list, preserving order.
// Returns false if id was not present.
func (a *Agent) detachAsset(id InstrumentID) bool {
	i := slices.Index(a.Assets, id)
	if i < 0 {
		return false
	}
	a.Assets = slices.Delete(a.Assets, i, i+1)
	return true
}

func (a *Agent) detachLiability(id InstrumentID) bool {
	i := slices.Index(a.Liabilities, id)
	if i < 0 {
		return false
	}
	a.Liabilities = slices.Delete(a.Liabilities, i, i+1)
	return true
}
