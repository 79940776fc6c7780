// Package interaction holds the local projection of a telephony session:
// interaction records, their conference members, and the change
// notifications emitted whenever the projection mutates.
//
// Nothing in this package is safe for concurrent use. All reads and
// writes are expected to happen on the single owner goroutine (see
// internal/platform/owner).
package interaction

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Common errors for projection operations.
var (
	ErrNotFound      = errors.New("interaction not found")
	ErrAlreadyExists = errors.New("interaction already exists")
	ErrInvalidID     = errors.New("invalid interaction id")
	ErrInvalidValue  = errors.New("invalid attribute value")
)

// ID identifies an interaction. IDs are assigned by the telephony server
// and are always positive; zero means "no interaction".
type ID int64

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a positive decimal interaction id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidID, n)
	}
	return ID(n), nil
}

// State is the call state reported by the server.
type State int

const (
	StateNone State = iota
	StateOffering
	StateAlerting
	StateMessaging
	StateProceeding
	StateConnected
	StateHeld
	StateParked
	StateSuspended
	StateInternalDisconnect
	StateExternalDisconnect
	StateSystem
)

var stateNames = [...]string{
	StateNone:               "none",
	StateOffering:           "offering",
	StateAlerting:           "alerting",
	StateMessaging:          "messaging",
	StateProceeding:         "proceeding",
	StateConnected:          "connected",
	StateHeld:               "held",
	StateParked:             "parked",
	StateSuspended:          "suspended",
	StateInternalDisconnect: "internal_disconnect",
	StateExternalDisconnect: "external_disconnect",
	StateSystem:             "system",
}

// String returns the wire name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState parses a state name. Matching ignores case, underscores and
// spaces, so "InternalDisconnect" and "internal_disconnect" are equal.
// An empty string is StateNone.
func ParseState(raw string) (State, error) {
	key := normalizeName(raw)
	if key == "" {
		return StateNone, nil
	}
	for i, name := range stateNames {
		if normalizeName(name) == key {
			return State(i), nil
		}
	}
	return StateNone, fmt.Errorf("unknown interaction state %q", raw)
}

// Disconnected reports whether the call has ended on either side.
func (s State) Disconnected() bool {
	return s == StateInternalDisconnect || s == StateExternalDisconnect
}

// Capability is a bit-set of actions the server currently allows on an
// interaction.
type Capability uint32

const (
	CapPickup Capability = 1 << iota
	CapHold
	CapMute
	CapDisconnect
	CapConference
)

var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapPickup, "pickup"},
	{CapHold, "hold"},
	{CapMute, "mute"},
	{CapDisconnect, "disconnect"},
	{CapConference, "conference"},
}

// Has reports whether every bit of want is set.
func (c Capability) Has(want Capability) bool {
	return want != 0 && c&want == want
}

// Names returns the names of the set bits in a stable order.
func (c Capability) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, cn := range capabilityNames {
		if c&cn.bit != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

// String joins the capability names with "|".
func (c Capability) String() string {
	return strings.Join(c.Names(), "|")
}

// ParseCapabilities accepts either a decimal bitmask ("17") or a list of
// names separated by "|" or "," ("pickup|conference"). Empty input is the
// empty set.
func ParseCapabilities(raw string) (Capability, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return Capability(n), nil
	}

	var caps Capability
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' }) {
		key := normalizeName(part)
		if key == "" {
			continue
		}
		found := false
		for _, cn := range capabilityNames {
			if cn.name == key {
				caps |= cn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", strings.TrimSpace(part))
		}
	}
	return caps, nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}
