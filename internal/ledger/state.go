package ledger

import (
	"slices"

	"github.com/shopspring/decimal"
)

// State is the ledger's sole mutable aggregate: the agent and instrument
// registries, the append-only event log, the day counter, and the
// outstanding-supply counters for central-bank money.
//
// The outstanding counters duplicate information derivable from the
// instrument registry; AssertInvariants cross-checks them against the sum
// of live instruments on demand.
type State struct {
	agents      map[AgentID]*Agent
	instruments map[InstrumentID]*Instrument
	events      []Event
	day         int

	cashOutstanding     decimal.Decimal
	reservesOutstanding decimal.Decimal
}

func newState() *State {
	return &State{
		agents:              make(map[AgentID]*Agent),
		instruments:         make(map[InstrumentID]*Instrument),
		cashOutstanding:     decimal.Zero,
		reservesOutstanding: decimal.Zero,
	}
}

// clone takes a full deep snapshot for the atomic transaction wrapper.
//
// This is the simple correctness baseline from the design: O(state size)
// per transaction, which is adequate because state is bounded by
// simulation size and operations are infrequent relative to wall clock.
func (s *State) clone() *State {
	cp := &State{
		agents:              make(map[AgentID]*Agent, len(s.agents)),
		instruments:         make(map[InstrumentID]*Instrument, len(s.instruments)),
		events:              slices.Clone(s.events),
		day:                 s.day,
		cashOutstanding:     s.cashOutstanding,
		reservesOutstanding: s.reservesOutstanding,
	}
	for id, a := range s.agents {
		cp.agents[id] = a.clone()
	}
	for id, in := range s.instruments {
		cp.instruments[id] = in.clone()
	}
	return cp
}

// sortedInstrumentIDs returns every live instrument ID in lexicographic
// order. Map iteration order is randomized in Go; every scan that feeds
// events or settlement must go through here to stay deterministic.
func (s *State) sortedInstrumentIDs() []InstrumentID {
	ids := make([]InstrumentID, 0, len(s.instruments))
	for id := range s.instruments {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// sortedAgentIDs returns every agent ID in lexicographic order.
func (s *State) sortedAgentIDs() []AgentID {
	ids := make([]AgentID, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
