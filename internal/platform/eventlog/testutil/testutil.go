// Package testutil provides shared test helpers for event log sink tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
)

// TestEntry creates a test entry with a unique id.
func TestEntry(i int) *eventlog.Entry {
	return &eventlog.Entry{
		ID:            fmt.Sprintf("entry-%03d", i),
		Time:          time.Date(2026, 1, 2, 9, 4, 5, 123456700, time.UTC).Add(time.Duration(i) * time.Second),
		Level:         "ERROR",
		Message:       fmt.Sprintf("message %d", i),
		Kind:          "conference_item_changed",
		InteractionID: int64(100 + i),
		Attrs:         map[string]string{"component": "reconciler"},
	}
}

// RunSinkTests runs the standard test suite against an initialized sink.
func RunSinkTests(t *testing.T, sink eventlog.Sink) {
	ctx := context.Background()

	t.Run("AppendAssignsIncreasingSeq", func(t *testing.T) {
		var last int64
		for i := range 5 {
			e := TestEntry(i)
			if err := sink.Append(ctx, e); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if e.Seq <= last {
				t.Fatalf("Seq = %d after %d", e.Seq, last)
			}
			last = e.Seq
		}
	})

	t.Run("ListReturnsInOrder", func(t *testing.T) {
		got, err := sink.List(ctx, eventlog.Query{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("List() returned %d entries, want 5", len(got))
		}
		for i, e := range got {
			want := TestEntry(i)
			if e.ID != want.ID || e.Message != want.Message {
				t.Errorf("entry %d = %s/%q, want %s/%q", i, e.ID, e.Message, want.ID, want.Message)
			}
			if e.Kind != want.Kind || e.InteractionID != want.InteractionID {
				t.Errorf("entry %d kind/id = %s/%d", i, e.Kind, e.InteractionID)
			}
			if e.Attrs["component"] != "reconciler" {
				t.Errorf("entry %d attrs = %v", i, e.Attrs)
			}
			if !e.Time.Equal(want.Time) {
				t.Errorf("entry %d time = %v, want %v", i, e.Time, want.Time)
			}
		}
	})

	t.Run("ListAfterSeqAndLimit", func(t *testing.T) {
		all, err := sink.List(ctx, eventlog.Query{})
		if err != nil {
			t.Fatal(err)
		}
		got, err := sink.List(ctx, eventlog.Query{AfterSeq: all[1].Seq, Limit: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != all[2].ID || got[1].ID != all[3].ID {
			t.Errorf("List(after %d, limit 2) = %v", all[1].Seq, got)
		}
	})
}
