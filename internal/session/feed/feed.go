// Package feed decodes notification batches and connection events from
// their JSON wire form. The same decoder serves the HTTP ingress and the
// JSONL replay reader.
package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// ErrInvalidBatch wraps every decoding failure.
var ErrInvalidBatch = errors.New("invalid batch")

// MaxLineBytes bounds one JSONL replay line.
const MaxLineBytes = 1 << 20

// BatchPayload is the wire form of a batch.
type BatchPayload struct {
	Added             []ItemPayload       `json:"added,omitempty"`
	Changed           []ItemPayload       `json:"changed,omitempty"`
	Removed           []ItemPayload       `json:"removed,omitempty"`
	ConferenceAdded   []ConferencePayload `json:"conference_added,omitempty"`
	ConferenceChanged []ConferencePayload `json:"conference_changed,omitempty"`
	ConferenceRemoved []ConferencePayload `json:"conference_removed,omitempty"`
}

// ItemPayload carries one interaction id and its reported attributes.
// Names lists attributes reported as changed without a value.
type ItemPayload struct {
	ID         int64                      `json:"id"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
	Names      []string                   `json:"changed,omitempty"`
}

// ConferencePayload is the wire form of a conference item notification.
type ConferencePayload struct {
	ConferenceID int64       `json:"conference_id"`
	Item         ItemPayload `json:"conference_item"`
	Interaction  ItemPayload `json:"interaction"`
}

// ActionPayload is an operator command in a replay stream. Check and
// Focus adjust the selection before Name runs.
type ActionPayload struct {
	Name       string  `json:"name"`
	Check      []int64 `json:"check,omitempty"`
	Uncheck    []int64 `json:"uncheck,omitempty"`
	Focus      int64   `json:"focus,omitempty"`
	DialString *string `json:"dial_string,omitempty"`
}

// Line is one JSONL replay record; exactly one field is set.
type Line struct {
	Batch      *BatchPayload            `json:"batch,omitempty"`
	Connection *session.ConnectionEvent `json:"connection,omitempty"`
	Action     *ActionPayload           `json:"action,omitempty"`
}

func (l Line) set() int {
	n := 0
	if l.Batch != nil {
		n++
	}
	if l.Connection != nil {
		n++
	}
	if l.Action != nil {
		n++
	}
	return n
}

// DecodeBatch reads one JSON batch from r.
func DecodeBatch(r io.Reader) (session.Batch, error) {
	var p BatchPayload
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return session.Batch{}, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	return p.Batch()
}

// DecodeConnection reads one JSON connection event from r.
func DecodeConnection(r io.Reader) (session.ConnectionEvent, error) {
	var ev session.ConnectionEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return session.ConnectionEvent{}, fmt.Errorf("invalid connection event: %w", err)
	}
	st, err := session.ParseConnectionState(string(ev.State))
	if err != nil {
		return session.ConnectionEvent{}, err
	}
	ev.State = st
	return ev, nil
}

// Batch converts the payload into a session batch, keeping the
// application order of the six notification kinds.
func (p BatchPayload) Batch() (session.Batch, error) {
	var b session.Batch
	groups := []struct {
		kind  session.Kind
		items []ItemPayload
	}{
		{session.InteractionAdded, p.Added},
		{session.InteractionChanged, p.Changed},
		{session.InteractionRemoved, p.Removed},
	}
	for _, g := range groups {
		for _, it := range g.items {
			id, attrs, unknown, err := it.decode(&b)
			if err != nil {
				return session.Batch{}, fmt.Errorf("%w: %s: %v", ErrInvalidBatch, g.kind, err)
			}
			b.Notifications = append(b.Notifications, session.Notification{
				Kind:        g.kind,
				Interaction: id,
				Changed:     attrs,
				Unknown:     unknown,
			})
		}
	}

	confGroups := []struct {
		kind  session.Kind
		items []ConferencePayload
	}{
		{session.ConferenceItemAdded, p.ConferenceAdded},
		{session.ConferenceItemChanged, p.ConferenceChanged},
		{session.ConferenceItemRemoved, p.ConferenceRemoved},
	}
	for _, g := range confGroups {
		for _, c := range g.items {
			n, err := c.decode(g.kind, &b)
			if err != nil {
				return session.Batch{}, fmt.Errorf("%w: %s: %v", ErrInvalidBatch, g.kind, err)
			}
			b.Notifications = append(b.Notifications, n)
		}
	}
	return b, nil
}

func (c ConferencePayload) decode(kind session.Kind, b *session.Batch) (session.Notification, error) {
	if c.ConferenceID < 0 {
		return session.Notification{}, fmt.Errorf("invalid conference_id %d", c.ConferenceID)
	}
	itemID, itemAttrs, itemUnknown, err := c.Item.decode(b)
	if err != nil {
		return session.Notification{}, fmt.Errorf("conference_item: %v", err)
	}
	hostID, hostAttrs, hostUnknown, err := c.Interaction.decode(b)
	if err != nil {
		return session.Notification{}, fmt.Errorf("interaction: %v", err)
	}
	return session.Notification{
		Kind:        kind,
		Interaction: hostID,
		Conference:  interaction.ID(c.ConferenceID),
		Item:        itemID,
		Changed:     itemAttrs,
		HostChanged: hostAttrs,
		Unknown:     append(itemUnknown, hostUnknown...),
	}, nil
}

// decode validates the item, records its values into b and returns the
// attributes it names in vocabulary order.
func (it ItemPayload) decode(b *session.Batch) (interaction.ID, []interaction.Attribute, []string, error) {
	if it.ID <= 0 {
		return 0, nil, nil, fmt.Errorf("invalid id %d", it.ID)
	}
	id := interaction.ID(it.ID)

	named := make(map[interaction.Attribute]bool)
	var unknown []string
	values := make(map[interaction.Attribute]string)
	for name, raw := range it.Attributes {
		a, ok := interaction.ParseAttribute(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v, err := scalar(raw)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("attribute %s: %v", name, err)
		}
		values[a] = v
		named[a] = true
	}
	for _, name := range it.Names {
		a, ok := interaction.ParseAttribute(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		named[a] = true
	}
	if len(values) > 0 {
		b.Values = append(b.Values, session.Values{ID: id, Attrs: values})
	}

	var attrs []interaction.Attribute
	for _, a := range interaction.Attributes() {
		if named[a] {
			attrs = append(attrs, a)
		}
	}
	slices.Sort(unknown)
	return id, attrs, unknown, nil
}

// scalar renders a JSON attribute value in the session's string form.
// Arrays become comma separated lists.
func scalar(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			switch ev := e.(type) {
			case string:
				parts = append(parts, ev)
			case json.Number:
				parts = append(parts, ev.String())
			default:
				return "", fmt.Errorf("unsupported list element %T", e)
			}
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value %T", v)
	}
}

// Reader reads a JSONL replay stream. Blank lines and lines starting with
// '#' are skipped.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a replay reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{sc: sc}
}

// Entry is one decoded replay record.
type Entry struct {
	Line       int
	Batch      *session.Batch
	Connection *session.ConnectionEvent
	Action     *ActionPayload
}

// Next returns the next entry or io.EOF.
func (r *Reader) Next() (Entry, error) {
	for r.sc.Scan() {
		r.line++
		text := bytes.TrimSpace(r.sc.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		var l Line
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&l); err != nil {
			return Entry{}, fmt.Errorf("line %d: %w: %v", r.line, ErrInvalidBatch, err)
		}
		if l.set() != 1 {
			return Entry{}, fmt.Errorf("line %d: %w: exactly one of batch, connection or action must be set", r.line, ErrInvalidBatch)
		}
		switch {
		case l.Batch != nil:
			b, err := l.Batch.Batch()
			if err != nil {
				return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
			}
			return Entry{Line: r.line, Batch: &b}, nil
		case l.Connection != nil:
			st, err := session.ParseConnectionState(string(l.Connection.State))
			if err != nil {
				return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
			}
			ev := *l.Connection
			ev.State = st
			return Entry{Line: r.line, Connection: &ev}, nil
		default:
			if strings.TrimSpace(l.Action.Name) == "" {
				return Entry{}, fmt.Errorf("line %d: %w: action name is required", r.line, ErrInvalidBatch)
			}
			return Entry{Line: r.line, Action: l.Action}, nil
		}
	}
	if err := r.sc.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, io.EOF
}
