// Package desk composes the interaction projection, the notification
// reconciler, the selection controller and the action gateway around one
// owner loop. Every public method is safe for concurrent use: each one is
// marshaled onto the loop before it touches any state.
package desk

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/actions"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/reconciler"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/owner"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// Options configures a Desk.
type Options struct {
	// UserID is the signed-in user.
	UserID string
	// DialString is the initial dial destination.
	DialString string
	// QueueSize bounds the owner loop queue.
	QueueSize int
	// Requester receives action requests.
	Requester session.Requester
	Logger    *slog.Logger
}

// Snapshot is a consistent view of the desk taken on the owner loop.
type Snapshot struct {
	Interactions []interaction.View `json:"interactions"`
	Selection    selection.State    `json:"selection"`
}

// Desk is one live session's state.
type Desk struct {
	loop  *owner.Loop
	cache *session.Cache
	proj  *interaction.Projection
	sel   *selection.Controller
	rec   *reconciler.Reconciler
	gw    *actions.Gateway
	log   *slog.Logger

	// dropped collects ids removed from the projection during one batch.
	dropped []interaction.ID
}

// New builds a desk. Call Start before using it.
func New(opts Options) *Desk {
	log := logutil.NoopIfNil(opts.Logger)
	d := &Desk{
		loop:  owner.New(opts.QueueSize, log),
		cache: session.NewCache(),
		proj:  interaction.New(opts.UserID),
		log:   log.With("component", "desk"),
	}
	d.sel = selection.New(d.proj, strings.TrimSpace(opts.DialString), log)
	d.rec = reconciler.New(d.proj, d.sel, d.cache, log)
	d.gw = actions.New(d.sel, opts.Requester, log)
	d.proj.Observe(interaction.ObserverFunc(d.observe))
	d.sel.OnChange(func(e selection.Eligibility) {
		d.log.Debug("eligibility changed",
			"pickup", e.Pickup, "hold", e.Hold, "mute", e.Mute,
			"disconnect", e.Disconnect, "conference", e.Conference)
	})
	return d
}

// Start runs the owner loop until ctx ends or Close is called.
func (d *Desk) Start(ctx context.Context) {
	d.loop.Start(ctx)
}

// Close stops accepting work and waits until accepted work has run.
func (d *Desk) Close(ctx context.Context) error {
	d.loop.Close()
	return d.loop.Wait(ctx)
}

// Cache exposes the attribute cache backing the desk.
func (d *Desk) Cache() *session.Cache { return d.cache }

// Deliver queues a batch for application without waiting for it. The
// batch's values are cached, its notifications applied in order and the
// values of removed interactions evicted afterwards.
func (d *Desk) Deliver(ctx context.Context, b session.Batch) error {
	return d.loop.Post(ctx, func() { d.apply(b) })
}

// Apply is Deliver that waits for the batch to be applied.
func (d *Desk) Apply(ctx context.Context, b session.Batch) (reconciler.Stats, error) {
	return owner.Call(ctx, d.loop, func() reconciler.Stats { return d.apply(b) })
}

func (d *Desk) apply(b session.Batch) reconciler.Stats {
	d.cache.Store(b)
	st := d.rec.ApplyBatch(b)
	d.cache.Evict(b)
	// Members dropped with their host have no remove notification of
	// their own. Ids placed again within the batch keep their values.
	for _, id := range d.dropped {
		if !d.proj.Contains(id) {
			d.cache.Forget(id)
		}
	}
	d.dropped = d.dropped[:0]
	return st
}

func (d *Desk) observe(c interaction.Change) {
	switch c.Kind {
	case interaction.HostRemoved, interaction.MemberRemoved:
		d.dropped = append(d.dropped, c.Target())
	}
}

// SetChecked checks or unchecks a host. It reports false when id is not a
// host.
func (d *Desk) SetChecked(ctx context.Context, id interaction.ID, on bool) (bool, error) {
	return owner.Call(ctx, d.loop, func() bool { return d.sel.SetChecked(id, on) })
}

// Focus makes id the primary host. It reports false when id is not a host.
func (d *Desk) Focus(ctx context.Context, id interaction.ID) (bool, error) {
	return owner.Call(ctx, d.loop, func() bool { return d.sel.Focus(id) })
}

// SetDialString replaces the dial destination.
func (d *Desk) SetDialString(ctx context.Context, s string) error {
	return d.loop.Do(ctx, func() { d.sel.SetDialString(s) })
}

type executed struct {
	res actions.Result
	err error
}

// Execute runs an action against the current selection.
func (d *Desk) Execute(ctx context.Context, a selection.Action) (actions.Result, error) {
	x, err := owner.Call(ctx, d.loop, func() executed {
		res, err := d.gw.Execute(a)
		return executed{res: res, err: err}
	})
	if err != nil {
		return actions.Result{}, err
	}
	return x.res, x.err
}

// Eligibility returns the current action flags.
func (d *Desk) Eligibility(ctx context.Context) (selection.Eligibility, error) {
	return owner.Call(ctx, d.loop, d.sel.Eligibility)
}

// Snapshot renders the projection and selection.
func (d *Desk) Snapshot(ctx context.Context) (Snapshot, error) {
	return owner.Call(ctx, d.loop, func() Snapshot {
		return Snapshot{Interactions: d.proj.Views(), Selection: d.sel.Snapshot()}
	})
}
