package pipeline

import (
	"sync"
	"time"

	"transit-ingest/internal/record"
)

// Entry is one buffered message: the decoded record plus the channel
// callbacks that settle it. Ack and Nak may be nil when the consumer has
// already settled the message (buffer ack policy).
type Entry struct {
	Record record.Raw
	Ack    func() error
	Nak    func() error
}

// Accumulator is the single shared mutable resource between the delivery
// callbacks and the orchestrator's control loop. Append and Drain are
// serialized by one mutex; batch processing happens outside it.
type Accumulator struct {
	mu           sync.Mutex
	entries      []Entry
	received     int64
	lastActivity time.Time
}

func NewAccumulator() *Accumulator {
	return &Accumulator{lastActivity: time.Now()}
}

// Append buffers an entry and returns the new buffer length so the caller
// can apply the size-threshold flush trigger.
func (a *Accumulator) Append(e Entry) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	a.received++
	a.lastActivity = time.Now()
	return len(a.entries)
}

// Drain atomically returns and clears the buffer. An Append racing a Drain
// lands either in this batch or the next, never both, never nowhere.
func (a *Accumulator) Drain() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := a.entries
	a.entries = nil
	return batch
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Received is the total number of entries ever appended.
func (a *Accumulator) Received() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}

// LastActivity is the time of the most recent Append, used for the
// idle-timeout decision.
func (a *Accumulator) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}
