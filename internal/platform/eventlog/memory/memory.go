// Package memory implements an in-memory event log sink.
package memory

import (
	"context"
	"sync"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
)

func init() {
	eventlog.Register("memory", NewDriver)
}

// Driver keeps entries in a slice. When a capacity is set the oldest
// entries are discarded first.
type Driver struct {
	mu       sync.RWMutex
	entries  []eventlog.Entry
	seq      int64
	capacity int
	closed   bool
}

// NewDriver creates a memory sink.
func NewDriver(cfg *eventlog.DriverConfig) (eventlog.Sink, error) {
	return New(cfg.Capacity), nil
}

// New returns a memory sink keeping at most capacity entries (0 = all).
func New(capacity int) *Driver {
	if capacity < 0 {
		capacity = 0
	}
	return &Driver{capacity: capacity}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Append stores a copy of e.
func (d *Driver) Append(ctx context.Context, e *eventlog.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return eventlog.ErrClosed
	}
	d.seq++
	e.Seq = d.seq
	d.entries = append(d.entries, *e)
	if d.capacity > 0 && len(d.entries) > d.capacity {
		n := len(d.entries) - d.capacity
		d.entries = append(d.entries[:0:0], d.entries[n:]...)
	}
	return nil
}

// List returns entries after q.AfterSeq in order.
func (d *Driver) List(ctx context.Context, q eventlog.Query) ([]eventlog.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, eventlog.ErrClosed
	}
	var out []eventlog.Entry
	for _, e := range d.entries {
		if e.Seq <= q.AfterSeq {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Close marks the sink closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
