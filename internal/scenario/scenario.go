// Package scenario loads, validates, and executes simulation scenario
// files. A scenario declares the agents, the initial setup operations,
// and how many days to run; the runner drives the ledger and the day
// engines from it.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensimfi/daybook/internal/policy"
)

// Scenario is the parsed form of a scenario file.
type Scenario struct {
	// Name uniquely identifies the scenario; it is recorded on journal
	// runs and names the golden trace file in tests.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Days is how many full days the driver runs. Defaults to 1.
	Days int `yaml:"days,omitempty"`

	// Denom overrides the default denomination stamped on minted money.
	Denom string `yaml:"denom,omitempty"`

	// Agents are registered before any setup step executes.
	Agents []AgentDecl `yaml:"agents"`

	// Policy optionally replaces the default capability table.
	Policy *policy.Config `yaml:"policy,omitempty"`

	// Setup operations establish initial positions and schedule
	// obligations. They execute in order on day 0, before the first
	// day run, and are assumed to succeed.
	Setup []Step `yaml:"setup,omitempty"`
}

// AgentDecl declares one economic actor.
type AgentDecl struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
	Kind string `yaml:"kind"`
}

// Step is one setup operation. The op field selects the ledger
// operation; the remaining fields are sparse and op-specific. Amounts
// are decimal strings so scenario files never round-trip through
// floats.
type Step struct {
	Op         string `yaml:"op"`
	From       string `yaml:"from,omitempty"`
	To         string `yaml:"to,omitempty"`
	Customer   string `yaml:"customer,omitempty"`
	Bank       string `yaml:"bank,omitempty"`
	Debtor     string `yaml:"debtor,omitempty"`
	Creditor   string `yaml:"creditor,omitempty"`
	Issuer     string `yaml:"issuer,omitempty"`
	Holder     string `yaml:"holder,omitempty"`
	Instrument string `yaml:"instrument,omitempty"`
	Amount     string `yaml:"amount,omitempty"`
	Quantity   string `yaml:"quantity,omitempty"`
	Price      string `yaml:"price,omitempty"`
	UnitPrice  string `yaml:"unit_price,omitempty"`
	SKU        string `yaml:"sku,omitempty"`
	Divisible  *bool  `yaml:"divisible,omitempty"`
	DueDay     *int   `yaml:"due_day,omitempty"`
}

// Load reads, schema-validates, and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(path, src)
}

// Parse schema-validates and decodes scenario YAML. The filename is
// used only in error positions.
func Parse(filename string, src []byte) (*Scenario, error) {
	if err := ValidateYAML(filename, src); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.Days == 0 {
		sc.Days = 1
	}
	return &sc, nil
}
