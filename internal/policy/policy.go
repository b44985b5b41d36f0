// Package policy implements the static capability table gating who may
// issue or hold each instrument kind, plus each agent kind's ranked list
// of preferred settlement means.
//
// The table is plain data, not a state machine: it is built once from
// configuration (or Default) and consulted by the ledger on every issue
// and hold decision.
package policy

import (
	"fmt"

	"github.com/opensimfi/daybook/internal/ledger"
)

// Table is the compiled capability table. Implements ledger.Policy.
type Table struct {
	issue map[ledger.InstrumentKind]map[ledger.AgentKind]bool
	hold  map[ledger.InstrumentKind]map[ledger.AgentKind]bool
	order map[ledger.AgentKind][]ledger.SettlementMethod
}

// CanIssue reports whether an agent kind may issue an instrument kind.
func (t *Table) CanIssue(a ledger.AgentKind, k ledger.InstrumentKind) bool {
	return t.issue[k][a]
}

// CanHold reports whether an agent kind may hold an instrument kind.
func (t *Table) CanHold(a ledger.AgentKind, k ledger.InstrumentKind) bool {
	return t.hold[k][a]
}

// SettlementOrder returns the agent kind's ranked settlement means.
// Phase B walks the list in order, stopping once an obligation is fully
// discharged. The returned slice is a copy.
func (t *Table) SettlementOrder(a ledger.AgentKind) []ledger.SettlementMethod {
	src := t.order[a]
	out := make([]ledger.SettlementMethod, len(src))
	copy(out, src)
	return out
}

// Config is the YAML shape of a policy table. Instrument kinds, agent
// kinds, and settlement methods are snake_case names matching the
// ledger's String() forms.
type Config struct {
	// Issuers maps instrument kind to the agent kinds allowed to issue it.
	Issuers map[string][]string `yaml:"issuers"`
	// Holders maps instrument kind to the agent kinds allowed to hold it.
	Holders map[string][]string `yaml:"holders"`
	// SettlementOrder maps agent kind to its ranked settlement means.
	SettlementOrder map[string][]string `yaml:"settlement_order"`
}

// FromConfig compiles a Config into a Table. Unknown kind or method
// names fail compilation; an empty allow-list means nobody.
func FromConfig(cfg Config) (*Table, error) {
	t := &Table{
		issue: make(map[ledger.InstrumentKind]map[ledger.AgentKind]bool),
		hold:  make(map[ledger.InstrumentKind]map[ledger.AgentKind]bool),
		order: make(map[ledger.AgentKind][]ledger.SettlementMethod),
	}
	var err error
	if t.issue, err = compileAllowLists("issuers", cfg.Issuers); err != nil {
		return nil, err
	}
	if t.hold, err = compileAllowLists("holders", cfg.Holders); err != nil {
		return nil, err
	}
	for agentName, methodNames := range cfg.SettlementOrder {
		ak, err := ledger.ParseAgentKind(agentName)
		if err != nil {
			return nil, fmt.Errorf("settlement_order: %w", err)
		}
		methods := make([]ledger.SettlementMethod, 0, len(methodNames))
		for _, mn := range methodNames {
			m, err := ledger.ParseSettlementMethod(mn)
			if err != nil {
				return nil, fmt.Errorf("settlement_order for %s: %w", agentName, err)
			}
			methods = append(methods, m)
		}
		t.order[ak] = methods
	}
	return t, nil
}

func compileAllowLists(section string, lists map[string][]string) (map[ledger.InstrumentKind]map[ledger.AgentKind]bool, error) {
	out := make(map[ledger.InstrumentKind]map[ledger.AgentKind]bool, len(lists))
	for kindName, agentNames := range lists {
		ik, err := ledger.ParseInstrumentKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		allow := make(map[ledger.AgentKind]bool, len(agentNames))
		for _, an := range agentNames {
			ak, err := ledger.ParseAgentKind(an)
			if err != nil {
				return nil, fmt.Errorf("%s for %s: %w", section, kindName, err)
			}
			allow[ak] = true
		}
		out[ik] = allow
	}
	return out, nil
}

// Default wires the real-world constraints: only the central bank issues
// cash and reserves; only commercial banks issue deposits; any agent may
// issue a payable or a deliverable obligation. Households and firms
// settle by deposit before cash; banks settle in reserves only.
func Default() *Table {
	everyone := []string{"central_bank", "bank", "household", "firm", "treasury"}
	cfg := Config{
		Issuers: map[string][]string{
			"cash":            {"central_bank"},
			"reserve_deposit": {"central_bank"},
			"bank_deposit":    {"bank"},
			"payable":         everyone,
			"deliverable":     everyone,
		},
		Holders: map[string][]string{
			"cash":            everyone,
			"reserve_deposit": {"central_bank", "bank", "treasury"},
			"bank_deposit":    {"household", "firm", "treasury"},
			"payable":         everyone,
			"deliverable":     everyone,
		},
		SettlementOrder: map[string][]string{
			"household":    {"deposit", "cash"},
			"firm":         {"deposit", "cash"},
			"treasury":     {"deposit", "reserves", "cash"},
			"bank":         {"reserves"},
			"central_bank": {"reserves"},
		},
	}
	t, err := FromConfig(cfg)
	if err != nil {
		// The built-in table only fails if its literals are wrong.
		panic(fmt.Sprintf("policy: invalid default table: %v", err))
	}
	return t
}
