package interaction

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Attribute names one cached value the server reports for an interaction.
type Attribute int

const (
	AttrID Attribute = iota
	AttrType
	AttrState
	AttrStateDescription
	AttrUserQueueNames
	AttrRemoteAddress
	AttrRemoteID
	AttrRemoteName
	AttrLocalAddress
	AttrLocalID
	AttrLocalName
	AttrConferenceID
	AttrMuted
	AttrCapabilities
	AttrStationQueueNames

	attrCount
)

// Field names an observable value of a record: either a cached attribute
// or a flag derived from cached attributes.
type Field int

const (
	FieldNone Field = iota
	FieldType
	FieldState
	FieldStateDescription
	FieldUserQueueNames
	FieldRemoteAddress
	FieldRemoteID
	FieldRemoteName
	FieldLocalAddress
	FieldLocalID
	FieldLocalName
	FieldConferenceID
	FieldMuted
	FieldCapabilities
	FieldStationQueueNames

	// Derived flags.
	FieldIsConnected
	FieldIsDisconnected
	FieldIsInConference
	FieldCanConference
	FieldIsOtherConferenceParty
)

var fieldNames = [...]string{
	FieldNone:                   "none",
	FieldType:                   "type",
	FieldState:                  "state",
	FieldStateDescription:       "state_description",
	FieldUserQueueNames:         "user_queue_names",
	FieldRemoteAddress:          "remote_address",
	FieldRemoteID:               "remote_id",
	FieldRemoteName:             "remote_name",
	FieldLocalAddress:           "local_address",
	FieldLocalID:                "local_id",
	FieldLocalName:              "local_name",
	FieldConferenceID:           "conference_id",
	FieldMuted:                  "muted",
	FieldCapabilities:           "capabilities",
	FieldStationQueueNames:      "station_queue_names",
	FieldIsConnected:            "is_connected",
	FieldIsDisconnected:         "is_disconnected",
	FieldIsInConference:         "is_in_conference",
	FieldCanConference:          "can_conference",
	FieldIsOtherConferenceParty: "is_other_conference_party",
}

// String returns the field name used in logs and the HTTP API.
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// Derived reports whether the field is computed rather than cached.
func (f Field) Derived() bool {
	return f >= FieldIsConnected
}

// Fields is the cached attribute snapshot of one interaction.
type Fields struct {
	Type              string
	State             State
	StateDescription  string
	UserQueueNames    []string
	RemoteAddress     string
	RemoteID          string
	RemoteName        string
	LocalAddress      string
	LocalID           string
	LocalName         string
	ConferenceID      ID
	Muted             bool
	Capabilities      Capability
	StationQueueNames []string
}

func (f Fields) clone() Fields {
	f.UserQueueNames = slices.Clone(f.UserQueueNames)
	f.StationQueueNames = slices.Clone(f.StationQueueNames)
	return f
}

// setResult describes what a setter did to a record.
type setResult struct {
	changed    bool
	prev, next any
}

// attributeSpec binds an attribute to its wire name, the field it feeds
// and the typed setter that parses a raw value into that field.
type attributeSpec struct {
	name  string
	field Field
	set   func(f *Fields, raw string) (setResult, error)
}

// attributeTable is indexed by Attribute. Its length is fixed by
// attrCount, so adding an Attribute without a table entry fails the
// table completeness test rather than silently dropping updates.
var attributeTable = [attrCount]attributeSpec{
	AttrID: {
		name:  "id",
		field: FieldNone,
		// The id is immutable for the record's lifetime.
		set: func(*Fields, string) (setResult, error) { return setResult{}, nil },
	},
	AttrType:             stringAttr("type", FieldType, func(f *Fields) *string { return &f.Type }),
	AttrState:            {name: "state", field: FieldState, set: setState},
	AttrStateDescription: stringAttr("state_description", FieldStateDescription, func(f *Fields) *string { return &f.StateDescription }),
	AttrUserQueueNames:   listAttr("user_queue_names", FieldUserQueueNames, func(f *Fields) *[]string { return &f.UserQueueNames }),
	AttrRemoteAddress:    stringAttr("remote_address", FieldRemoteAddress, func(f *Fields) *string { return &f.RemoteAddress }),
	AttrRemoteID:         stringAttr("remote_id", FieldRemoteID, func(f *Fields) *string { return &f.RemoteID }),
	AttrRemoteName:       stringAttr("remote_name", FieldRemoteName, func(f *Fields) *string { return &f.RemoteName }),
	AttrLocalAddress:     stringAttr("local_address", FieldLocalAddress, func(f *Fields) *string { return &f.LocalAddress }),
	AttrLocalID:          stringAttr("local_id", FieldLocalID, func(f *Fields) *string { return &f.LocalID }),
	AttrLocalName:        stringAttr("local_name", FieldLocalName, func(f *Fields) *string { return &f.LocalName }),
	AttrConferenceID:     {name: "conference_id", field: FieldConferenceID, set: setConferenceID},
	AttrMuted:            {name: "muted", field: FieldMuted, set: setMuted},
	AttrCapabilities:     {name: "capabilities", field: FieldCapabilities, set: setCapabilities},
	AttrStationQueueNames: listAttr("station_queue_names", FieldStationQueueNames, func(f *Fields) *[]string {
		return &f.StationQueueNames
	}),
}

// Attributes returns the full attribute vocabulary in declaration order.
func Attributes() []Attribute {
	all := make([]Attribute, attrCount)
	for i := range all {
		all[i] = Attribute(i)
	}
	return all
}

// String returns the wire name of the attribute.
func (a Attribute) String() string {
	if !a.valid() {
		return "attribute(" + strconv.Itoa(int(a)) + ")"
	}
	return attributeTable[a].name
}

// Field returns the observable field the attribute feeds.
func (a Attribute) Field() Field {
	if !a.valid() {
		return FieldNone
	}
	return attributeTable[a].field
}

func (a Attribute) valid() bool {
	return a >= 0 && a < attrCount
}

// ParseAttribute maps a wire name to an Attribute. Matching ignores case.
func ParseAttribute(name string) (Attribute, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range attributeTable {
		if attributeTable[i].name == key {
			return Attribute(i), true
		}
	}
	return 0, false
}

func stringAttr(name string, field Field, ptr func(*Fields) *string) attributeSpec {
	return attributeSpec{
		name:  name,
		field: field,
		set: func(f *Fields, raw string) (setResult, error) {
			p := ptr(f)
			if *p == raw {
				return setResult{}, nil
			}
			prev := *p
			*p = raw
			return setResult{changed: true, prev: prev, next: raw}, nil
		},
	}
}

func listAttr(name string, field Field, ptr func(*Fields) *[]string) attributeSpec {
	return attributeSpec{
		name:  name,
		field: field,
		set: func(f *Fields, raw string) (setResult, error) {
			p := ptr(f)
			next := SplitList(raw)
			if slices.Equal(*p, next) {
				return setResult{}, nil
			}
			prev := *p
			*p = next
			return setResult{changed: true, prev: prev, next: slices.Clone(next)}, nil
		},
	}
}

func setState(f *Fields, raw string) (setResult, error) {
	st, err := ParseState(raw)
	if err != nil {
		return setResult{}, err
	}
	if f.State == st {
		return setResult{}, nil
	}
	prev := f.State
	f.State = st
	return setResult{changed: true, prev: prev, next: st}, nil
}

func setConferenceID(f *Fields, raw string) (setResult, error) {
	var id ID
	if raw = strings.TrimSpace(raw); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return setResult{}, fmt.Errorf("invalid conference id %q", raw)
		}
		id = ID(n)
	}
	if f.ConferenceID == id {
		return setResult{}, nil
	}
	prev := f.ConferenceID
	f.ConferenceID = id
	return setResult{changed: true, prev: prev, next: id}, nil
}

func setMuted(f *Fields, raw string) (setResult, error) {
	muted := false
	if raw = strings.TrimSpace(raw); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return setResult{}, fmt.Errorf("invalid muted flag %q", raw)
		}
		muted = b
	}
	if f.Muted == muted {
		return setResult{}, nil
	}
	f.Muted = muted
	return setResult{changed: true, prev: !muted, next: muted}, nil
}

func setCapabilities(f *Fields, raw string) (setResult, error) {
	caps, err := ParseCapabilities(raw)
	if err != nil {
		return setResult{}, err
	}
	if f.Capabilities == caps {
		return setResult{}, nil
	}
	prev := f.Capabilities
	f.Capabilities = caps
	return setResult{changed: true, prev: prev, next: caps}, nil
}

// SplitList splits a comma separated attribute value, trimming blanks and
// dropping empty entries. It returns nil for an empty list.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
