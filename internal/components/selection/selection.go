// Package selection tracks which host interactions the user has checked and
// focused, and derives from them which actions are currently allowed.
//
// A Controller belongs to the owner goroutine of its projection and is not
// safe for concurrent use.
package selection

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
)

// Action is a user command.
type Action string

const (
	ActionPickup     Action = "pickup"
	ActionHold       Action = "hold"
	ActionMute       Action = "mute"
	ActionDisconnect Action = "disconnect"
	ActionConference Action = "conference"
	ActionDial       Action = "dial"
)

// Actions lists every action in display order.
var Actions = []Action{ActionPickup, ActionHold, ActionMute, ActionDisconnect, ActionConference, ActionDial}

// ParseAction parses an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// capability returns the bit a single-target action requires.
func (a Action) capability() interaction.Capability {
	switch a {
	case ActionPickup:
		return interaction.CapPickup
	case ActionHold:
		return interaction.CapHold
	case ActionMute:
		return interaction.CapMute
	case ActionDisconnect:
		return interaction.CapDisconnect
	case ActionConference:
		return interaction.CapConference
	default:
		return 0
	}
}

// Eligibility holds the five derived action flags.
type Eligibility struct {
	Pickup     bool `json:"pickup"`
	Hold       bool `json:"hold"`
	Mute       bool `json:"mute"`
	Disconnect bool `json:"disconnect"`
	Conference bool `json:"conference"`
}

// Allows reports the flag for a. Dial is not gated by eligibility.
func (e Eligibility) Allows(a Action) bool {
	switch a {
	case ActionPickup:
		return e.Pickup
	case ActionHold:
		return e.Hold
	case ActionMute:
		return e.Mute
	case ActionDisconnect:
		return e.Disconnect
	case ActionConference:
		return e.Conference
	default:
		return false
	}
}

// State is a read-only snapshot of the controller.
type State struct {
	Primary     interaction.ID   `json:"primary,omitempty"`
	Checked     []interaction.ID `json:"checked"`
	Eligibility Eligibility      `json:"eligibility"`
	DialString  string           `json:"dial_string"`
	CanDial     bool             `json:"can_dial"`
}

// Controller owns the checked set, the primary host and the eligibility
// flags derived from them.
type Controller struct {
	proj *interaction.Projection
	log  *slog.Logger

	checked map[interaction.ID]bool
	primary interaction.ID
	elig    Eligibility
	dial    string

	listeners []func(Eligibility)
}

// New returns a controller bound to proj. It registers itself as a
// projection observer so removals and capability changes are tracked.
func New(proj *interaction.Projection, dialString string, log *slog.Logger) *Controller {
	c := &Controller{
		proj:    proj,
		log:     logutil.NoopIfNil(log).With("component", "selection"),
		checked: make(map[interaction.ID]bool),
		dial:    dialString,
	}
	proj.Observe(c)
	return c
}

// OnChange registers fn to receive the eligibility flags whenever at least
// one of them flips.
func (c *Controller) OnChange(fn func(Eligibility)) {
	if fn != nil {
		c.listeners = append(c.listeners, fn)
	}
}

// Observe implements interaction.Observer.
func (c *Controller) Observe(ch interaction.Change) {
	switch ch.Kind {
	case interaction.HostRemoved:
		if c.Involves(ch.Host) {
			delete(c.checked, ch.Host)
			if c.primary == ch.Host {
				c.primary = 0
			}
			c.Recompute()
		}
	case interaction.FieldChanged:
		if ch.Member != 0 || !c.Involves(ch.Host) {
			return
		}
		if ch.Field == interaction.FieldCapabilities && c.checked[ch.Host] {
			prev, _ := ch.Prev.(interaction.Capability)
			next, _ := ch.Next.(interaction.Capability)
			if prev.Has(interaction.CapConference) && !next.Has(interaction.CapConference) {
				delete(c.checked, ch.Host)
				c.log.Info("unchecked interaction that lost conference capability", "interaction_id", int64(ch.Host))
			}
		}
		c.Recompute()
	}
}

// Involves reports whether id is checked or is the primary host.
func (c *Controller) Involves(id interaction.ID) bool {
	return c.checked[id] || (id != 0 && c.primary == id)
}

// SetChecked checks or unchecks a host. Checking also focuses it. An id
// that is not a host in the projection is treated as already cleared: it
// is dropped from the checked set and false is returned.
func (c *Controller) SetChecked(id interaction.ID, on bool) bool {
	if _, ok := c.proj.Host(id); !ok {
		if c.checked[id] {
			delete(c.checked, id)
			c.Recompute()
		}
		return false
	}
	if on {
		c.checked[id] = true
		c.primary = id
	} else {
		delete(c.checked, id)
	}
	c.Recompute()
	return true
}

// Checked reports whether id is checked.
func (c *Controller) Checked(id interaction.ID) bool { return c.checked[id] }

// CheckedIDs returns the checked hosts in projection order.
func (c *Controller) CheckedIDs() []interaction.ID {
	var out []interaction.ID
	for _, id := range c.proj.HostIDs() {
		if c.checked[id] {
			out = append(out, id)
		}
	}
	return out
}

// Focus makes id the primary host. It returns false, leaving the focus
// untouched, when id is not a host.
func (c *Controller) Focus(id interaction.ID) bool {
	if _, ok := c.proj.Host(id); !ok {
		return false
	}
	c.primary = id
	c.Recompute()
	return true
}

// Primary returns the focused host.
func (c *Controller) Primary() (interaction.ID, bool) {
	return c.primary, c.primary != 0
}

// Eligibility returns the current flags.
func (c *Controller) Eligibility() Eligibility { return c.elig }

// Recompute re-derives every flag and notifies listeners if any flipped.
func (c *Controller) Recompute() Eligibility {
	next := c.compute()
	if next != c.elig {
		c.elig = next
		for _, fn := range c.listeners {
			fn(next)
		}
	}
	return c.elig
}

func (c *Controller) compute() Eligibility {
	var e Eligibility
	if p, ok := c.singleTarget(); ok {
		e.Pickup = p.HasCapability(interaction.CapPickup)
		e.Hold = p.HasCapability(interaction.CapHold)
		e.Mute = p.HasCapability(interaction.CapMute)
		e.Disconnect = p.HasCapability(interaction.CapDisconnect)
	}

	live := c.liveChecked()
	if len(live) >= 2 {
		e.Conference = true
		for _, r := range live {
			if !r.HasCapability(interaction.CapConference) {
				e.Conference = false
				break
			}
		}
	}
	return e
}

// singleTarget resolves the primary host for single-target actions. It
// fails when the primary is gone or disconnected, or when some other live
// host is checked alongside it.
func (c *Controller) singleTarget() (*interaction.Record, bool) {
	if c.primary == 0 {
		return nil, false
	}
	p, ok := c.proj.Host(c.primary)
	if !ok || p.IsDisconnected() {
		return nil, false
	}
	for id := range c.checked {
		if id == c.primary {
			continue
		}
		if r, ok := c.proj.Host(id); ok && !r.IsDisconnected() {
			return nil, false
		}
	}
	return p, true
}

// liveChecked returns the checked hosts that still exist and are not
// disconnected, in projection order.
func (c *Controller) liveChecked() []*interaction.Record {
	var out []*interaction.Record
	for _, r := range c.proj.Hosts() {
		if c.checked[r.ID()] && !r.IsDisconnected() {
			out = append(out, r)
		}
	}
	return out
}

// Target returns the record a single-target action applies to, or false
// when the action is not currently allowed.
func (c *Controller) Target(a Action) (*interaction.Record, bool) {
	if a == ActionConference || a == ActionDial || !c.elig.Allows(a) {
		return nil, false
	}
	p, ok := c.singleTarget()
	if !ok || !p.HasCapability(a.capability()) {
		return nil, false
	}
	return p, true
}

// ConferenceTargets returns the live checked hosts when conferencing is
// allowed.
func (c *Controller) ConferenceTargets() ([]interaction.ID, bool) {
	if !c.elig.Conference {
		return nil, false
	}
	live := c.liveChecked()
	ids := make([]interaction.ID, 0, len(live))
	for _, r := range live {
		ids = append(ids, r.ID())
	}
	return ids, len(ids) >= 2
}

// DialString returns the destination used by the dial action.
func (c *Controller) DialString() string { return c.dial }

// SetDialString replaces the dial destination.
func (c *Controller) SetDialString(s string) { c.dial = strings.TrimSpace(s) }

// CanDial reports whether a destination is set.
func (c *Controller) CanDial() bool { return c.dial != "" }

// Snapshot returns the current selection state.
func (c *Controller) Snapshot() State {
	return State{
		Primary:     c.primary,
		Checked:     c.CheckedIDs(),
		Eligibility: c.elig,
		DialString:  c.dial,
		CanDial:     c.CanDial(),
	}
}
