package desk

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/actions"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/recorder"
)

const confCaps = "pickup|hold|mute|disconnect|conference"

func startDesk(t *testing.T) (*Desk, *recorder.Requester) {
	t.Helper()
	req := &recorder.Requester{}
	d := New(Options{UserID: "alice", DialString: "3172222222", Requester: req})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Close(context.Background())
	})
	return d, req
}

func addBatch(ids ...interaction.ID) session.Batch {
	var b session.Batch
	for _, id := range ids {
		b.Notifications = append(b.Notifications, session.Notification{
			Kind:        session.InteractionAdded,
			Interaction: id,
			Changed:     []interaction.Attribute{interaction.AttrState, interaction.AttrCapabilities},
		})
		b.Values = append(b.Values, session.Values{ID: id, Attrs: map[interaction.Attribute]string{
			interaction.AttrState:        "connected",
			interaction.AttrCapabilities: confCaps,
		}})
	}
	return b
}

func removeBatch(ids ...interaction.ID) session.Batch {
	var b session.Batch
	for _, id := range ids {
		b.Notifications = append(b.Notifications, session.Notification{Kind: session.InteractionRemoved, Interaction: id})
	}
	return b
}

func TestDesk_AddSelectRemoveScenario(t *testing.T) {
	d, _ := startDesk(t)
	ctx := context.Background()

	if _, err := d.Apply(ctx, addBatch(100)); err != nil {
		t.Fatal(err)
	}
	snap, _ := d.Snapshot(ctx)
	if len(snap.Interactions) != 1 || snap.Selection.Primary != 100 {
		t.Fatalf("after add 100: %+v", snap)
	}

	d.Apply(ctx, addBatch(200))
	for _, id := range []interaction.ID{100, 200} {
		if ok, err := d.SetChecked(ctx, id, true); !ok || err != nil {
			t.Fatalf("SetChecked(%d) = %v, %v", id, ok, err)
		}
	}
	if e, _ := d.Eligibility(ctx); !e.Conference {
		t.Fatalf("Conference = false with both hosts checked")
	}

	d.Apply(ctx, removeBatch(100))
	snap, _ = d.Snapshot(ctx)
	if len(snap.Interactions) != 1 || snap.Interactions[0].ID != 200 {
		t.Errorf("interactions = %+v, want only 200", snap.Interactions)
	}
	if snap.Selection.Eligibility.Conference {
		t.Error("Conference = true after removing 100")
	}
	if _, err := d.Cache().Attribute(100, interaction.AttrState); !errors.Is(err, session.ErrNotCached) {
		t.Errorf("values of removed interaction still cached: %v", err)
	}
}

func TestDesk_ExecuteGoesThroughRequester(t *testing.T) {
	d, req := startDesk(t)
	ctx := context.Background()
	d.Apply(ctx, addBatch(7))

	res, err := d.Execute(ctx, selection.ActionHold)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Submitted || res.On == nil || !*res.On {
		t.Errorf("result = %+v", res)
	}
	if reqs := req.Requests(); len(reqs) != 1 || reqs[0].String() != "hold 7 on=true" {
		t.Errorf("requests = %v", reqs)
	}

	if _, err := d.Execute(ctx, selection.ActionConference); !errors.Is(err, actions.ErrNotEligible) {
		t.Errorf("Execute(conference) error = %v, want ErrNotEligible", err)
	}

	if err := d.SetDialString(ctx, "5550000"); err != nil {
		t.Fatal(err)
	}
	res, _ = d.Execute(ctx, selection.ActionDial)
	if res.Destination != "5550000" {
		t.Errorf("Destination = %q", res.Destination)
	}
}

// Deliveries and selection toggles from many goroutines must end in the
// same state as applying them one after another.
func TestDesk_ConcurrentMutationsAreSerialized(t *testing.T) {
	d, _ := startDesk(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 25 {
				id := interaction.ID(g*100 + i + 1)
				if err := d.Deliver(ctx, addBatch(id)); err != nil {
					t.Errorf("Deliver() error = %v", err)
					return
				}
				d.SetChecked(ctx, id, true)
				if i%2 == 1 {
					d.Deliver(ctx, removeBatch(id))
					// A toggle racing the removal resolves to "not found".
					d.SetChecked(ctx, id, true)
				}
			}
		}(g)
	}
	wg.Wait()

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Interactions) != 8*13 {
		t.Errorf("interactions = %d, want %d", len(snap.Interactions), 8*13)
	}
	live := map[interaction.ID]bool{}
	for _, v := range snap.Interactions {
		live[v.ID] = true
	}
	for _, id := range snap.Selection.Checked {
		if !live[id] {
			t.Errorf("checked id %d is not a host", id)
		}
	}
}

func TestDesk_MethodsFailAfterClose(t *testing.T) {
	req := &recorder.Requester{}
	d := New(Options{Requester: req})
	d.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Deliver(ctx, addBatch(1)); err == nil {
		t.Error("Deliver() after Close succeeded")
	}
	if _, err := d.Snapshot(ctx); err == nil {
		t.Error("Snapshot() after Close succeeded")
	}
}

// recordingHandler captures log messages; derived handlers share storage.
type recordingHandler struct {
	mu       *sync.Mutex
	messages *[]string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{mu: &sync.Mutex{}, messages: new([]string)}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.messages = append(*h.messages, r.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) contains(s string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range *h.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func TestSupervisor_ConnectionLifecycle(t *testing.T) {
	logs := newRecordingHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSupervisor(ctx, Options{Requester: &recorder.Requester{}, Logger: slog.New(logs)})
	defer s.Close(context.Background())

	if err := s.Deliver(ctx, addBatch(1)); !errors.Is(err, ErrNoSession) {
		t.Errorf("Deliver() before up error = %v, want ErrNoSession", err)
	}

	s.OnConnectionState(session.ConnectionEvent{State: session.StateUp, Message: "Connected", Reason: "login"})
	if !logs.contains("Connection state: up (Connected) [login]") {
		t.Error("connection state line not logged")
	}
	d, err := s.Desk()
	if err != nil {
		t.Fatalf("Desk() error = %v", err)
	}
	d.Apply(ctx, addBatch(1))

	s.OnConnectionState(session.ConnectionEvent{State: session.StateDown, Message: "Lost", Reason: "network"})
	if _, err := s.Desk(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Desk() after down error = %v", err)
	}
	if got := s.State(); got.State != session.StateDown || got.Reason != "network" {
		t.Errorf("State() = %+v", got)
	}
	if !logs.contains("batch dropped") {
		t.Error("dropped batch before up was not logged")
	}

	s.OnConnectionState(session.ConnectionEvent{State: session.StateUp})
	d2, _ := s.Desk()
	if d2 == d {
		t.Fatal("desk reused across sessions")
	}
	snap, _ := d2.Snapshot(ctx)
	if len(snap.Interactions) != 0 {
		t.Errorf("fresh desk has %d interactions", len(snap.Interactions))
	}
}

// Run with -race: every call returns before its closure runs on the loop.
func TestDesk_ContextEndsWhileLoopBusy(t *testing.T) {
	d, _ := startDesk(t)
	d.Apply(context.Background(), addBatch(1, 2))

	release := make(chan struct{})
	if err := d.loop.Post(context.Background(), func() { <-release }); err != nil {
		t.Fatal(err)
	}

	// Each call gets its own deadline so the command is queued before the
	// deadline passes.
	short := func() context.Context {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}

	if _, err := d.Snapshot(short()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Snapshot() error = %v", err)
	}
	if _, err := d.Eligibility(short()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Eligibility() error = %v", err)
	}
	if ok, err := d.SetChecked(short(), 1, true); ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SetChecked() = %v, %v", ok, err)
	}
	if ok, err := d.Focus(short(), 2); ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Focus() = %v, %v", ok, err)
	}
	if res, err := d.Execute(short(), selection.ActionHold); res.Submitted || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() = %+v, %v", res, err)
	}
	if _, err := d.Apply(short(), addBatch(3)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Apply() error = %v", err)
	}

	close(release)

	// The queued commands still run, in order, once the loop is free.
	snap, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Interactions) != 3 {
		t.Errorf("interactions = %d, want 3", len(snap.Interactions))
	}
	if snap.Selection.Primary != 2 {
		t.Errorf("primary = %d, want 2", snap.Selection.Primary)
	}
}

func TestDesk_HostRemovalForgetsMemberValues(t *testing.T) {
	d, _ := startDesk(t)
	ctx := context.Background()
	d.Apply(ctx, addBatch(1, 2))

	join := session.Batch{
		Notifications: []session.Notification{{
			Kind:        session.ConferenceItemAdded,
			Interaction: 1,
			Conference:  900,
			Item:        10,
			Changed:     []interaction.Attribute{interaction.AttrRemoteName},
		}},
		Values: []session.Values{{ID: 10, Attrs: map[interaction.Attribute]string{
			interaction.AttrRemoteName: "Bob",
		}}},
	}
	if _, err := d.Apply(ctx, join); err != nil {
		t.Fatal(err)
	}
	if v, err := d.Cache().Attribute(10, interaction.AttrRemoteName); err != nil || v != "Bob" {
		t.Fatalf("member value = %q, %v", v, err)
	}

	d.Apply(ctx, removeBatch(1))
	if n := d.Cache().Len(); n != 1 {
		t.Errorf("cached interactions = %d, want 1 (host 2 only)", n)
	}
	if _, err := d.Cache().Attribute(10, interaction.AttrRemoteName); !errors.Is(err, session.ErrNotCached) {
		t.Errorf("member of removed host still cached: %v", err)
	}

	// The same item joining another host starts from empty values.
	rejoin := session.Batch{Notifications: []session.Notification{{
		Kind:        session.ConferenceItemAdded,
		Interaction: 2,
		Conference:  901,
		Item:        10,
		Changed:     []interaction.Attribute{interaction.AttrRemoteName},
	}}}
	d.Apply(ctx, rejoin)
	snap, _ := d.Snapshot(ctx)
	if len(snap.Interactions) != 1 || len(snap.Interactions[0].Members) != 1 {
		t.Fatalf("interactions = %+v", snap.Interactions)
	}
	if name := snap.Interactions[0].Members[0].RemoteName; name != "" {
		t.Errorf("rejoined member remote_name = %q, want empty", name)
	}
}

func TestDesk_MemberPlacedAgainInSameBatchKeepsValues(t *testing.T) {
	d, _ := startDesk(t)
	ctx := context.Background()
	d.Apply(ctx, addBatch(1, 2))
	d.Apply(ctx, session.Batch{Notifications: []session.Notification{{
		Kind: session.ConferenceItemAdded, Interaction: 1, Conference: 900, Item: 10,
	}}})

	move := removeBatch(1)
	move.Notifications = append(move.Notifications, session.Notification{
		Kind:        session.ConferenceItemAdded,
		Interaction: 2,
		Conference:  901,
		Item:        10,
		Changed:     []interaction.Attribute{interaction.AttrRemoteName},
	})
	move.Values = []session.Values{{ID: 10, Attrs: map[interaction.Attribute]string{
		interaction.AttrRemoteName: "Carol",
	}}}
	d.Apply(ctx, move)

	if v, err := d.Cache().Attribute(10, interaction.AttrRemoteName); err != nil || v != "Carol" {
		t.Errorf("moved member value = %q, %v, want Carol", v, err)
	}
}
