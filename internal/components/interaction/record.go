package interaction

import (
	"slices"
	"strings"
)

// Record is the cached view of one interaction. A record is either a host
// (owned by the projection) or a conference member (owned by exactly one
// host). Members are held by id and never point back at their host.
type Record struct {
	id        ID
	localUser string
	fields    Fields

	members []ID
	byID    map[ID]*Record
}

func newRecord(id ID, localUser string) *Record {
	return &Record{id: id, localUser: localUser}
}

// ID returns the interaction id.
func (r *Record) ID() ID { return r.id }

// Fields returns a copy of the cached attribute values.
func (r *Record) Fields() Fields { return r.fields.clone() }

func (r *Record) State() State { return r.fields.State }

func (r *Record) Capabilities() Capability { return r.fields.Capabilities }

func (r *Record) Muted() bool { return r.fields.Muted }

func (r *Record) ConferenceID() ID { return r.fields.ConferenceID }

// Held reports whether the call is on hold; it decides the hold toggle direction.
func (r *Record) Held() bool { return r.fields.State == StateHeld }

func (r *Record) IsConnected() bool { return r.fields.State == StateConnected }

func (r *Record) IsDisconnected() bool { return r.fields.State.Disconnected() }

func (r *Record) IsInConference() bool { return r.fields.ConferenceID > 0 }

func (r *Record) HasCapability(c Capability) bool { return r.fields.Capabilities.Has(c) }

// CanConference reports whether the interaction may be merged into a new
// conference: it must allow conferencing and not already be grouped.
func (r *Record) CanConference() bool {
	return r.fields.Capabilities.Has(CapConference) && !r.IsInConference()
}

// IsOtherConferenceParty reports whether the record is a conference party
// that does not sit on the local user's own queue.
func (r *Record) IsOtherConferenceParty() bool {
	return r.IsInConference() && !r.onLocalQueue()
}

func (r *Record) onLocalQueue() bool {
	if r.localUser == "" {
		return false
	}
	for _, q := range r.fields.UserQueueNames {
		if strings.EqualFold(q, r.localUser) {
			return true
		}
		// Queue names are sometimes qualified, e.g. "User Queue:alice".
		if i := strings.LastIndexByte(q, ':'); i >= 0 && strings.EqualFold(strings.TrimSpace(q[i+1:]), r.localUser) {
			return true
		}
	}
	return false
}

// Members returns the conference members in insertion order.
func (r *Record) Members() []*Record {
	out := make([]*Record, 0, len(r.members))
	for _, id := range r.members {
		out = append(out, r.byID[id])
	}
	return out
}

// MemberIDs returns the member ids in insertion order.
func (r *Record) MemberIDs() []ID { return slices.Clone(r.members) }

// Member looks up a conference member by id.
func (r *Record) Member(id ID) (*Record, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Record) addMember(m *Record) {
	if r.byID == nil {
		r.byID = make(map[ID]*Record)
	}
	r.members = append(r.members, m.id)
	r.byID[m.id] = m
}

func (r *Record) removeMember(id ID) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	if i := slices.Index(r.members, id); i >= 0 {
		r.members = slices.Delete(r.members, i, i+1)
	}
	return true
}

// derivedFlags is a snapshot of every derived observable, taken before and
// after a refresh so that only real flips are emitted.
type derivedFlags [5]bool

var derivedFields = [5]Field{
	FieldIsConnected,
	FieldIsDisconnected,
	FieldIsInConference,
	FieldCanConference,
	FieldIsOtherConferenceParty,
}

func (r *Record) derived() derivedFlags {
	return derivedFlags{
		r.IsConnected(),
		r.IsDisconnected(),
		r.IsInConference(),
		r.CanConference(),
		r.IsOtherConferenceParty(),
	}
}

// View is the serializable form of a record.
type View struct {
	ID                     ID       `json:"id"`
	Type                   string   `json:"type,omitempty"`
	State                  State    `json:"state"`
	StateDescription       string   `json:"state_description,omitempty"`
	UserQueueNames         []string `json:"user_queue_names,omitempty"`
	RemoteAddress          string   `json:"remote_address,omitempty"`
	RemoteID               string   `json:"remote_id,omitempty"`
	RemoteName             string   `json:"remote_name,omitempty"`
	LocalAddress           string   `json:"local_address,omitempty"`
	LocalID                string   `json:"local_id,omitempty"`
	LocalName              string   `json:"local_name,omitempty"`
	ConferenceID           ID       `json:"conference_id,omitempty"`
	Muted                  bool     `json:"muted"`
	Capabilities           []string `json:"capabilities"`
	StationQueueNames      []string `json:"station_queue_names,omitempty"`
	IsConnected            bool     `json:"is_connected"`
	IsDisconnected         bool     `json:"is_disconnected"`
	IsInConference         bool     `json:"is_in_conference"`
	CanConference          bool     `json:"can_conference"`
	IsOtherConferenceParty bool     `json:"is_other_conference_party"`
	Members                []View   `json:"members,omitempty"`
}

// View renders the record and its members.
func (r *Record) View() View {
	f := r.fields.clone()
	v := View{
		ID:                     r.id,
		Type:                   f.Type,
		State:                  f.State,
		StateDescription:       f.StateDescription,
		UserQueueNames:         f.UserQueueNames,
		RemoteAddress:          f.RemoteAddress,
		RemoteID:               f.RemoteID,
		RemoteName:             f.RemoteName,
		LocalAddress:           f.LocalAddress,
		LocalID:                f.LocalID,
		LocalName:              f.LocalName,
		ConferenceID:           f.ConferenceID,
		Muted:                  f.Muted,
		Capabilities:           f.Capabilities.Names(),
		StationQueueNames:      f.StationQueueNames,
		IsConnected:            r.IsConnected(),
		IsDisconnected:         r.IsDisconnected(),
		IsInConference:         r.IsInConference(),
		CanConference:          r.CanConference(),
		IsOtherConferenceParty: r.IsOtherConferenceParty(),
	}
	for _, m := range r.Members() {
		v.Members = append(v.Members, m.View())
	}
	return v
}
