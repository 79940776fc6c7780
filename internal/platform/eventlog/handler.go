package eventlog

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler is an slog.Handler that copies records at or above a threshold
// into a Sink and forwards every record to the next handler. A failed
// append is counted and never fails the log call.
type Handler struct {
	next    slog.Handler
	sink    Sink
	level   slog.Leveler
	attrs   []slog.Attr
	groups  []string
	dropped *atomic.Int64
}

// NewHandler wraps next. A nil level means slog.LevelInfo.
func NewHandler(next slog.Handler, sink Sink, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{
		next:    next,
		sink:    sink,
		level:   level,
		dropped: new(atomic.Int64),
	}
}

// Dropped returns the number of records the sink failed to store.
func (h *Handler) Dropped() int64 { return h.dropped.Load() }

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() || h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		e := h.entry(r)
		if err := h.sink.Append(context.WithoutCancel(ctx), &e); err != nil {
			h.dropped.Add(1)
		}
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.next = h.next.WithAttrs(attrs)
	prefix := h.prefix()
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.next = h.next.WithGroup(name)
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		next:    h.next,
		sink:    h.sink,
		level:   h.level,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
		dropped: h.dropped,
	}
}

func (h *Handler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *Handler) entry(r slog.Record) Entry {
	e := Entry{
		ID:      uuid.NewString(),
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	add := func(key string, v slog.Value) {
		v = v.Resolve()
		switch key {
		case "kind":
			e.Kind = v.String()
			return
		case "interaction_id":
			if v.Kind() == slog.KindInt64 {
				e.InteractionID = v.Int64()
				return
			}
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]string)
		}
		e.Attrs[key] = v.String()
	}
	for _, a := range h.attrs {
		flatten("", a, add)
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		flatten(prefix, a, add)
		return true
	})
	return e
}

// flatten walks groups so nested attributes become dotted keys.
func flatten(prefix string, a slog.Attr, add func(string, slog.Value)) {
	if a.Equal(slog.Attr{}) {
		return
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(p, ga, add)
		}
		return
	}
	add(prefix+a.Key, v)
}
