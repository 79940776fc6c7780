package interaction

import (
	"errors"
	"fmt"
)

// Source reads the current raw value of one attribute for an interaction.
type Source interface {
	Attribute(id ID, a Attribute) (string, error)
}

// Placement tells where an id lives inside the projection.
type Placement struct {
	Host   ID
	Member bool
}

// Projection is the ordered set of host records plus their conference
// members. Every id is unique across the whole structure.
type Projection struct {
	localUser string

	order     []ID
	hosts     map[ID]*Record
	placement map[ID]Placement
	observers []Observer
}

// New returns an empty projection. localUser identifies the signed-in
// user and feeds IsOtherConferenceParty.
func New(localUser string) *Projection {
	return &Projection{
		localUser: localUser,
		hosts:     make(map[ID]*Record),
		placement: make(map[ID]Placement),
	}
}

// Observe registers an observer for every subsequent change.
func (p *Projection) Observe(o Observer) {
	if o != nil {
		p.observers = append(p.observers, o)
	}
}

func (p *Projection) emit(c Change) {
	for _, o := range p.observers {
		o.Observe(c)
	}
}

// Len returns the number of host records.
func (p *Projection) Len() int { return len(p.order) }

// HostIDs returns the host ids in insertion order.
func (p *Projection) HostIDs() []ID {
	out := make([]ID, len(p.order))
	copy(out, p.order)
	return out
}

// Hosts returns the host records in insertion order.
func (p *Projection) Hosts() []*Record {
	out := make([]*Record, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.hosts[id])
	}
	return out
}

// Host returns the host record with the given id.
func (p *Projection) Host(id ID) (*Record, bool) {
	r, ok := p.hosts[id]
	return r, ok
}

// Locate reports where id is placed, if anywhere.
func (p *Projection) Locate(id ID) (Placement, bool) {
	pl, ok := p.placement[id]
	return pl, ok
}

// Contains reports whether id is placed anywhere, as host or member.
func (p *Projection) Contains(id ID) bool {
	_, ok := p.placement[id]
	return ok
}

// Views renders all hosts with their members.
func (p *Projection) Views() []View {
	out := make([]View, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.hosts[id].View())
	}
	return out
}

// AddHost appends a new host record.
func (p *Projection) AddHost(id ID) (*Record, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if pl, ok := p.placement[id]; ok {
		return nil, fmt.Errorf("%w: %d (placed under host %d)", ErrAlreadyExists, id, pl.Host)
	}
	r := newRecord(id, p.localUser)
	p.order = append(p.order, id)
	p.hosts[id] = r
	p.placement[id] = Placement{Host: id}
	p.emit(Change{Kind: HostAdded, Host: id})
	return r, nil
}

// RemoveHost removes a host and all its members. One MemberRemoved change
// is emitted per member before the HostRemoved change.
func (p *Projection) RemoveHost(id ID) error {
	r, ok := p.hosts[id]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrNotFound, id)
	}
	for _, mid := range r.MemberIDs() {
		r.removeMember(mid)
		delete(p.placement, mid)
		p.emit(Change{Kind: MemberRemoved, Host: id, Member: mid})
	}
	delete(p.hosts, id)
	delete(p.placement, id)
	for i, hid := range p.order {
		if hid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.emit(Change{Kind: HostRemoved, Host: id})
	return nil
}

// AddMember attaches a new conference member to an existing host.
func (p *Projection) AddMember(host, member ID) (*Record, error) {
	if member <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, member)
	}
	h, ok := p.hosts[host]
	if !ok {
		return nil, fmt.Errorf("%w: host %d", ErrNotFound, host)
	}
	if pl, ok := p.placement[member]; ok {
		return nil, fmt.Errorf("%w: %d (placed under host %d)", ErrAlreadyExists, member, pl.Host)
	}
	m := newRecord(member, p.localUser)
	h.addMember(m)
	p.placement[member] = Placement{Host: host, Member: true}
	p.emit(Change{Kind: MemberAdded, Host: host, Member: member})
	return m, nil
}

// RemoveMember detaches a conference member from its host.
func (p *Projection) RemoveMember(host, member ID) error {
	h, ok := p.hosts[host]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrNotFound, host)
	}
	if !h.removeMember(member) {
		return fmt.Errorf("%w: member %d of host %d", ErrNotFound, member, host)
	}
	delete(p.placement, member)
	p.emit(Change{Kind: MemberRemoved, Host: host, Member: member})
	return nil
}

// Refresh re-reads attrs from src into a host (member == 0) or into one of
// the host's members. A FieldChanged change is emitted for every field
// whose value really changed, followed by one per derived flag that
// flipped. A failed read counts as an empty value. Read and parse
// failures are joined into the returned error; fields that could not be
// parsed keep their previous value.
func (p *Projection) Refresh(host, member ID, src Source, attrs []Attribute) error {
	r, err := p.record(host, member)
	if err != nil {
		return err
	}

	before := r.derived()
	var errs []error
	for _, a := range attrs {
		if !a.valid() || a == AttrID {
			continue
		}
		raw, rerr := src.Attribute(r.id, a)
		if rerr != nil {
			errs = append(errs, fmt.Errorf("read %s of %d: %w", a, r.id, rerr))
			raw = ""
		}
		def := attributeTable[a]
		res, serr := def.set(&r.fields, raw)
		if serr != nil {
			errs = append(errs, fmt.Errorf("%w: %s of %d: %v", ErrInvalidValue, a, r.id, serr))
			continue
		}
		if res.changed {
			p.emit(Change{Kind: FieldChanged, Host: host, Member: member, Field: def.field, Prev: res.prev, Next: res.next})
		}
	}

	after := r.derived()
	for i, f := range derivedFields {
		if before[i] != after[i] {
			p.emit(Change{Kind: FieldChanged, Host: host, Member: member, Field: f, Prev: before[i], Next: after[i]})
		}
	}
	return errors.Join(errs...)
}

func (p *Projection) record(host, member ID) (*Record, error) {
	h, ok := p.hosts[host]
	if !ok {
		return nil, fmt.Errorf("%w: host %d", ErrNotFound, host)
	}
	if member == 0 {
		return h, nil
	}
	m, ok := h.Member(member)
	if !ok {
		return nil, fmt.Errorf("%w: member %d of host %d", ErrNotFound, member, host)
	}
	return m, nil
}
