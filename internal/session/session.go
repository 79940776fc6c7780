// Package session describes the telephony session collaborator: the
// notification stream it delivers, the attribute values it caches, and the
// fire-and-forget requests it accepts.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
)

// Common errors.
var (
	// ErrNotCached is returned when an attribute value is not available,
	// typically because the interaction was removed concurrently.
	ErrNotCached = errors.New("attribute not cached")

	// ErrQueueFull is returned when a request cannot be queued for submission.
	ErrQueueFull = errors.New("request queue full")

	// ErrClosed is returned by requesters after Close.
	ErrClosed = errors.New("session closed")
)

// Kind is the notification kind.
type Kind int

const (
	InteractionAdded Kind = iota + 1
	InteractionChanged
	InteractionRemoved
	ConferenceItemAdded
	ConferenceItemChanged
	ConferenceItemRemoved
)

var kindNames = map[Kind]string{
	InteractionAdded:      "interaction_added",
	InteractionChanged:    "interaction_changed",
	InteractionRemoved:    "interaction_removed",
	ConferenceItemAdded:   "conference_item_added",
	ConferenceItemChanged: "conference_item_changed",
	ConferenceItemRemoved: "conference_item_removed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Conference reports whether the kind carries conference item ids.
func (k Kind) Conference() bool {
	return k >= ConferenceItemAdded && k <= ConferenceItemRemoved
}

// Notification is one event of the session stream.
//
// For interaction kinds only Interaction is set. For conference kinds
// Interaction is the host through whose view the event is reported,
// Item is the other party and Conference is the conference id.
type Notification struct {
	Kind        Kind
	Interaction interaction.ID
	Conference  interaction.ID
	Item        interaction.ID

	// Changed lists the attributes carried for the target: the interaction
	// itself, or the conference item for conference kinds.
	Changed []interaction.Attribute
	// HostChanged lists attributes carried for the host of a conference
	// notification. They are applied when the host is materialized.
	HostChanged []interaction.Attribute
	// Unknown keeps attribute names outside the known vocabulary.
	Unknown []string
}

// Target returns the id the notification mutates.
func (n Notification) Target() interaction.ID {
	if n.Kind.Conference() {
		return n.Item
	}
	return n.Interaction
}

// LogAttrs returns identifying key/value pairs for structured logging.
func (n Notification) LogAttrs() []any {
	args := []any{"kind", n.Kind.String(), "interaction_id", int64(n.Interaction)}
	if n.Kind.Conference() {
		args = append(args, "conference_id", int64(n.Conference), "item_id", int64(n.Item))
	}
	return args
}

// Values carries raw attribute values reported for one interaction.
type Values struct {
	ID    interaction.ID
	Attrs map[interaction.Attribute]string
}

// Batch is one queue-contents-changed delivery. Notifications are kept in
// application order: added, changed, removed, conference added, conference
// changed, conference removed.
type Batch struct {
	Notifications []Notification
	Values        []Values
}

// Len returns the number of notifications.
func (b Batch) Len() int { return len(b.Notifications) }

// ConnectionState is the session connection state.
type ConnectionState string

const (
	StateNone       ConnectionState = "none"
	StateAttempting ConnectionState = "attempting"
	StateUp         ConnectionState = "up"
	StateDown       ConnectionState = "down"
)

// ParseConnectionState parses a connection state name, ignoring case.
func ParseConnectionState(s string) (ConnectionState, error) {
	switch st := ConnectionState(strings.ToLower(strings.TrimSpace(s))); st {
	case StateNone, StateAttempting, StateUp, StateDown:
		return st, nil
	default:
		return "", fmt.Errorf("invalid connection state %q: must be one of none, attempting, up, down", s)
	}
}

// ConnectionEvent reports a connection state change.
type ConnectionEvent struct {
	State   ConnectionState `json:"state"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
}

// AttributeSource exposes the session's cached attribute values.
type AttributeSource interface {
	Attribute(id interaction.ID, a interaction.Attribute) (string, error)
}

// Requester submits requests to the telephony server. Every call returns
// once the request is accepted for submission; the outcome arrives later
// as notifications.
type Requester interface {
	Pickup(id interaction.ID) error
	Hold(id interaction.ID, on bool) error
	Mute(id interaction.ID, on bool) error
	Disconnect(id interaction.ID) error
	MakeConference(ids []interaction.ID) error
	MakeCall(destination string) error
}
