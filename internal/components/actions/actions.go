// Package actions turns user commands into session requests.
//
// The gateway never waits for an outcome: a request is handed to the
// session requester and its effect shows up later as notifications. It
// never mutates the projection or the selection either.
package actions

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// ErrNotEligible is returned when the action is not currently allowed.
// Nothing is submitted in that case.
var ErrNotEligible = errors.New("action not eligible")

// Result describes a submitted request.
type Result struct {
	Action      selection.Action `json:"action"`
	Targets     []interaction.ID `json:"targets,omitempty"`
	Destination string           `json:"destination,omitempty"`
	// On is the requested toggle state for hold and mute.
	On *bool `json:"on,omitempty"`
	// Submitted is false when the requester refused the request. The
	// failure is logged; the caller has nothing to roll back.
	Submitted bool `json:"submitted"`
}

// Gateway executes actions against a selection controller.
type Gateway struct {
	sel *selection.Controller
	req session.Requester
	log *slog.Logger
}

// New returns a gateway that submits through req.
func New(sel *selection.Controller, req session.Requester, log *slog.Logger) *Gateway {
	return &Gateway{
		sel: sel,
		req: req,
		log: logutil.NoopIfNil(log).With("component", "actions"),
	}
}

// Execute issues the request for a. It must run on the owner loop.
func (g *Gateway) Execute(a selection.Action) (Result, error) {
	res := Result{Action: a}

	switch a {
	case selection.ActionDial:
		if !g.sel.CanDial() {
			g.log.Info("action not eligible", "action", string(a))
			return res, fmt.Errorf("%w: %s", ErrNotEligible, a)
		}
		res.Destination = g.sel.DialString()
		g.submit(&res, func() error { return g.req.MakeCall(res.Destination) })
		return res, nil

	case selection.ActionConference:
		ids, ok := g.sel.ConferenceTargets()
		if !ok {
			g.log.Info("action not eligible", "action", string(a))
			return res, fmt.Errorf("%w: %s", ErrNotEligible, a)
		}
		res.Targets = ids
		g.submit(&res, func() error { return g.req.MakeConference(ids) })
		return res, nil

	case selection.ActionPickup, selection.ActionHold, selection.ActionMute, selection.ActionDisconnect:
		r, ok := g.sel.Target(a)
		if !ok {
			g.log.Info("action not eligible", "action", string(a))
			return res, fmt.Errorf("%w: %s", ErrNotEligible, a)
		}
		id := r.ID()
		res.Targets = []interaction.ID{id}
		var call func() error
		switch a {
		case selection.ActionPickup:
			call = func() error { return g.req.Pickup(id) }
		case selection.ActionHold:
			on := !r.Held()
			res.On = &on
			call = func() error { return g.req.Hold(id, on) }
		case selection.ActionMute:
			on := !r.Muted()
			res.On = &on
			call = func() error { return g.req.Mute(id, on) }
		default:
			call = func() error { return g.req.Disconnect(id) }
		}
		g.submit(&res, call)
		return res, nil

	default:
		return res, fmt.Errorf("unknown action %q", a)
	}
}

func (g *Gateway) submit(res *Result, call func() error) {
	if err := call(); err != nil {
		g.log.Error("failed to submit request",
			"action", string(res.Action), "targets", res.Targets, "error", err)
		return
	}
	res.Submitted = true
	g.log.Debug("request submitted", "action", string(res.Action), "targets", res.Targets)
}
