package ledger

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// AgentID uniquely identifies an economic agent.
type AgentID string

// InstrumentID uniquely identifies an instrument (a bilateral contract).
type InstrumentID string

// IDGenerator produces unique instrument identifiers.
// Implemented by SequentialGenerator (simulation default, deterministic)
// and UUIDv7Generator (interactive/ad-hoc use).
type IDGenerator interface {
	Next() InstrumentID
}

// SequentialGenerator issues "prefix-1", "prefix-2", ... identifiers.
//
// This is the default for simulation runs: the same scenario always
// produces the same instrument IDs, which keeps event traces and golden
// files reproducible.
//
// Thread-safety: safe for concurrent use (atomic counter), though the
// ledger itself is single-threaded.
type SequentialGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialGenerator creates a generator with the given ID prefix.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *SequentialGenerator) Next() InstrumentID {
	return InstrumentID(fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1)))
}

// UUIDv7Generator generates time-sortable UUIDv7 instrument IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, making IDs
// sortable by creation time. Useful when a ledger is driven interactively
// rather than from a scenario file.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Next creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Next() InstrumentID {
	return InstrumentID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined IDs for testing.
//
// Tests can provide a known sequence of IDs and verify exact trace output.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []InstrumentID
	idx int
}

// NewFixedGenerator creates a generator that returns IDs in order.
// Next panics once all IDs are consumed; exhaustion in a test means the
// test created more instruments than it accounted for.
func NewFixedGenerator(ids ...InstrumentID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Next returns the next predetermined ID.
func (g *FixedGenerator) Next() InstrumentID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator exhausted after %d IDs", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Clock is a monotonic logical clock for event ordering.
//
// Every event appended to the ledger log is stamped with a strictly
// increasing seq number from this clock. This ensures deterministic
// ordering with no wall-clock race conditions, and that a replayed
// scenario produces an identical trace.
//
// Sequence numbers survive transaction rollback: a rolled-back operation
// may leave a gap in the log's seq values. Gaps are harmless and equally
// deterministic.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// ledger's single-writer design means only one goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
