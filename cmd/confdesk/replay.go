package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/actions"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/reconciler"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/feed"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/recorder"
)

// replayReport is printed at the end of a replay.
type replayReport struct {
	Connection session.ConnectionEvent `json:"connection"`
	Batches    int                     `json:"batches"`
	Dropped    int                     `json:"dropped"`
	Stats      reconciler.Stats        `json:"stats"`
	Actions    int                     `json:"actions"`
	Rejected   int                     `json:"rejected"`
	Requests   []recorder.Request      `json:"requests,omitempty"`
	Snapshot   *desk.Snapshot          `json:"snapshot,omitempty"`
}

// replay feeds a JSONL stream through a supervisor. A batch seen before
// any connection event brings the session up implicitly; batches and
// actions seen while the session is down are dropped. Actions the
// selection does not allow are counted as rejected.
func replay(ctx context.Context, r io.Reader, opts desk.Options, log *slog.Logger) (*replayReport, error) {
	req := &recorder.Requester{}
	opts.Requester = req
	opts.Logger = log

	sup := desk.NewSupervisor(ctx, opts)
	defer sup.Close(context.WithoutCancel(ctx))

	rep := &replayReport{}
	rd := feed.NewReader(r)
	for {
		e, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if e.Connection != nil {
			sup.OnConnectionState(*e.Connection)
			continue
		}

		if e.Action != nil {
			rep.Actions++
			d, err := sup.Desk()
			if err != nil {
				log.Warn("action dropped: no active session", "line", e.Line, "action", e.Action.Name)
				rep.Dropped++
				continue
			}
			rejected, err := runAction(ctx, d, e.Action, log.With("line", e.Line))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", e.Line, err)
			}
			if rejected {
				rep.Rejected++
			}
			continue
		}

		rep.Batches++
		if sup.State().State == session.StateNone {
			sup.OnConnectionState(session.ConnectionEvent{State: session.StateUp, Message: "replay", Reason: "implicit"})
		}
		d, err := sup.Desk()
		if err != nil {
			log.Warn("batch dropped: no active session", "line", e.Line, "notifications", e.Batch.Len())
			rep.Dropped++
			continue
		}
		st, err := d.Apply(ctx, *e.Batch)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", e.Line, err)
		}
		rep.Stats.Applied += st.Applied
		rep.Stats.Recovered += st.Recovered
		rep.Stats.Skipped += st.Skipped
	}

	rep.Connection = sup.State()
	rep.Requests = req.Requests()
	if d, err := sup.Desk(); err == nil {
		snap, err := d.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		rep.Snapshot = &snap
	}
	return rep, nil
}

// runAction applies the selection changes of a replayed action and then
// executes it. It reports true when the action was not eligible.
func runAction(ctx context.Context, d *desk.Desk, p *feed.ActionPayload, log *slog.Logger) (bool, error) {
	a, err := selection.ParseAction(p.Name)
	if err != nil {
		return false, err
	}
	if p.DialString != nil {
		if err := d.SetDialString(ctx, *p.DialString); err != nil {
			return false, err
		}
	}
	for _, ids := range []struct {
		list []int64
		on   bool
	}{{p.Uncheck, false}, {p.Check, true}} {
		for _, id := range ids.list {
			ok, err := d.SetChecked(ctx, interaction.ID(id), ids.on)
			if err != nil {
				return false, err
			}
			if !ok {
				log.Warn("replay selection ignored: not a host", "interaction_id", id)
			}
		}
	}
	if p.Focus != 0 {
		ok, err := d.Focus(ctx, interaction.ID(p.Focus))
		if err != nil {
			return false, err
		}
		if !ok {
			log.Warn("replay focus ignored: not a host", "interaction_id", p.Focus)
		}
	}

	_, err = d.Execute(ctx, a)
	if errors.Is(err, actions.ErrNotEligible) {
		return true, nil
	}
	return false, err
}
