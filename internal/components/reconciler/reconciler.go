// Package reconciler applies session notifications to the interaction
// projection.
//
// The stream is not trusted to be consistent: duplicate adds, changes for
// ids that were never added and conference items that reference unknown
// hosts all happen in practice. Each case is logged with the notification
// kind and ids and then either recovered by implicit creation or skipped.
// Nothing here returns an error to the transport.
//
// A Reconciler is not safe for concurrent use; it runs on the owner loop
// together with the projection and the selection controller.
package reconciler

import (
	"errors"
	"log/slog"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// Outcome classifies how a notification was handled.
type Outcome int

const (
	// Applied means the notification mutated the projection as described.
	Applied Outcome = iota
	// Recovered means a missing record was created implicitly.
	Recovered
	// Skipped means the notification was inconsistent and ignored.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Recovered:
		return "recovered"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Stats counts outcomes over a batch.
type Stats struct {
	Applied   int `json:"applied"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Applied:
		s.Applied++
	case Recovered:
		s.Recovered++
	case Skipped:
		s.Skipped++
	}
}

// Reconciler turns notifications into projection mutations.
type Reconciler struct {
	proj *interaction.Projection
	sel  *selection.Controller
	src  session.AttributeSource
	log  *slog.Logger
}

// New returns a reconciler over proj. Attribute values are read from src.
// sel may be nil, in which case no focus or eligibility work is done.
func New(proj *interaction.Projection, sel *selection.Controller, src session.AttributeSource, log *slog.Logger) *Reconciler {
	return &Reconciler{
		proj: proj,
		sel:  sel,
		src:  src,
		log:  logutil.NoopIfNil(log).With("component", "reconciler"),
	}
}

// ApplyBatch applies every notification of b in order.
func (r *Reconciler) ApplyBatch(b session.Batch) Stats {
	var st Stats
	for _, n := range b.Notifications {
		st.add(r.Apply(n))
	}
	if st.Skipped > 0 || st.Recovered > 0 {
		r.log.Debug("batch applied with inconsistencies",
			"notifications", b.Len(), "recovered", st.Recovered, "skipped", st.Skipped)
	}
	return st
}

// Apply dispatches n on its kind.
func (r *Reconciler) Apply(n session.Notification) Outcome {
	if len(n.Unknown) > 0 {
		r.log.Debug("ignoring unknown attributes", append(n.LogAttrs(), "attributes", n.Unknown)...)
	}
	switch n.Kind {
	case session.InteractionAdded:
		return r.InteractionAdded(n)
	case session.InteractionChanged:
		return r.InteractionChanged(n)
	case session.InteractionRemoved:
		return r.InteractionRemoved(n)
	case session.ConferenceItemAdded:
		return r.ConferenceItemAdded(n)
	case session.ConferenceItemChanged:
		return r.ConferenceItemChanged(n)
	case session.ConferenceItemRemoved:
		return r.ConferenceItemRemoved(n)
	default:
		r.log.Error("unknown notification kind", n.LogAttrs()...)
		return Skipped
	}
}

// InteractionAdded appends a new host. When exactly one live host exists
// afterwards it becomes the primary selection.
func (r *Reconciler) InteractionAdded(n session.Notification) Outcome {
	id := n.Interaction
	if pl, ok := r.proj.Locate(id); ok {
		r.log.Warn("duplicate interaction added", append(n.LogAttrs(), "placed_under", int64(pl.Host))...)
		return Skipped
	}
	if _, err := r.proj.AddHost(id); err != nil {
		r.log.Error("failed to add interaction", append(n.LogAttrs(), "error", err)...)
		return Skipped
	}
	r.refresh(n, id, 0, orAll(n.Changed))
	r.autoFocus()
	return Applied
}

// InteractionChanged refreshes the named attributes of a host, creating
// the host when it is unknown.
func (r *Reconciler) InteractionChanged(n session.Notification) Outcome {
	id := n.Interaction
	outcome := Applied

	pl, ok := r.proj.Locate(id)
	switch {
	case ok && pl.Member:
		r.log.Warn("change for a conference member reported as interaction", append(n.LogAttrs(), "host_id", int64(pl.Host))...)
		return Skipped
	case !ok:
		if _, err := r.proj.AddHost(id); err != nil {
			r.log.Error("failed to add interaction", append(n.LogAttrs(), "error", err)...)
			return Skipped
		}
		r.log.Warn("change for unknown interaction, adding it", n.LogAttrs()...)
		outcome = Recovered
	}

	involved := r.involves(id)
	attrs := n.Changed
	if outcome == Recovered {
		attrs = interaction.Attributes()
	}
	r.refresh(n, id, 0, attrs)
	if involved && r.sel != nil {
		r.sel.Recompute()
	}
	return outcome
}

// InteractionRemoved removes a host together with its members.
func (r *Reconciler) InteractionRemoved(n session.Notification) Outcome {
	id := n.Interaction
	pl, ok := r.proj.Locate(id)
	if !ok || pl.Member {
		r.log.Warn("remove for unknown interaction", n.LogAttrs()...)
		return Skipped
	}
	if err := r.proj.RemoveHost(id); err != nil {
		r.log.Error("failed to remove interaction", append(n.LogAttrs(), "error", err)...)
		return Skipped
	}
	return Applied
}

// ConferenceItemAdded attaches the item to its host, creating the host
// when it is unknown.
func (r *Reconciler) ConferenceItemAdded(n session.Notification) Outcome {
	host := n.Interaction
	outcome := Applied

	pl, ok := r.proj.Locate(host)
	switch {
	case ok && pl.Member:
		r.log.Error("conference host is a member of another interaction", append(n.LogAttrs(), "host_id", int64(pl.Host))...)
		return Skipped
	case !ok:
		if _, err := r.proj.AddHost(host); err != nil {
			r.log.Error("failed to add conference host", append(n.LogAttrs(), "error", err)...)
			return Skipped
		}
		r.log.Warn("conference item for unknown interaction, adding host", n.LogAttrs()...)
		r.refresh(n, host, 0, orAll(n.HostChanged))
		outcome = Recovered
	default:
		if len(n.HostChanged) > 0 {
			involved := r.involves(host)
			r.refresh(n, host, 0, n.HostChanged)
			if involved && r.sel != nil {
				r.sel.Recompute()
			}
		}
	}

	if other, ok := r.proj.Locate(n.Item); ok {
		r.log.Warn("duplicate conference item", append(n.LogAttrs(), "placed_under", int64(other.Host))...)
		if outcome == Recovered {
			return Recovered
		}
		return Skipped
	}
	if _, err := r.proj.AddMember(host, n.Item); err != nil {
		r.log.Error("failed to add conference item", append(n.LogAttrs(), "error", err)...)
		return Skipped
	}
	r.refresh(n, host, n.Item, orAll(n.Changed))
	return outcome
}

// ConferenceItemChanged refreshes a member. A missing host or member is
// logged once at error level and nothing is mutated.
func (r *Reconciler) ConferenceItemChanged(n session.Notification) Outcome {
	h, ok := r.proj.Host(n.Interaction)
	if !ok {
		r.log.Error("conference item changed for unknown interaction", n.LogAttrs()...)
		return Skipped
	}
	if _, ok := h.Member(n.Item); !ok {
		r.log.Error("conference item changed for unknown item", n.LogAttrs()...)
		return Skipped
	}
	r.refresh(n, n.Interaction, n.Item, n.Changed)
	return Applied
}

// ConferenceItemRemoved detaches a member from its host.
func (r *Reconciler) ConferenceItemRemoved(n session.Notification) Outcome {
	h, ok := r.proj.Host(n.Interaction)
	if !ok {
		r.log.Warn("conference item removed for unknown interaction", n.LogAttrs()...)
		return Skipped
	}
	if _, ok := h.Member(n.Item); !ok {
		r.log.Warn("conference item removed for unknown item", n.LogAttrs()...)
		return Skipped
	}
	if err := r.proj.RemoveMember(n.Interaction, n.Item); err != nil {
		r.log.Error("failed to remove conference item", append(n.LogAttrs(), "error", err)...)
		return Skipped
	}
	return Applied
}

// refresh re-reads attrs and logs read and parse problems. Values that
// could not be read count as empty; values that could not be parsed are
// left as they were.
func (r *Reconciler) refresh(n session.Notification, host, member interaction.ID, attrs []interaction.Attribute) {
	if len(attrs) == 0 {
		return
	}
	err := r.proj.Refresh(host, member, r.src, attrs)
	if err == nil {
		return
	}
	args := append(n.LogAttrs(), "target_id", int64(targetOf(host, member)), "error", err)
	if errors.Is(err, interaction.ErrInvalidValue) {
		r.log.Warn("attribute value rejected", args...)
		return
	}
	r.log.Debug("attribute read failed", args...)
}

func (r *Reconciler) autoFocus() {
	if r.sel == nil {
		return
	}
	var live []interaction.ID
	for _, h := range r.proj.Hosts() {
		if !h.IsDisconnected() {
			live = append(live, h.ID())
		}
	}
	if len(live) == 1 {
		r.sel.Focus(live[0])
	}
}

func (r *Reconciler) involves(id interaction.ID) bool {
	return r.sel != nil && r.sel.Involves(id)
}

func targetOf(host, member interaction.ID) interaction.ID {
	if member != 0 {
		return member
	}
	return host
}

// orAll returns attrs, or the whole vocabulary when attrs is empty. New
// records are read in full.
func orAll(attrs []interaction.Attribute) []interaction.Attribute {
	if len(attrs) > 0 {
		return attrs
	}
	return interaction.Attributes()
}
