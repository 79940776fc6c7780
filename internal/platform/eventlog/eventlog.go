// Package eventlog provides the operator log: an append-only, timestamped
// record of everything worth an operator's attention, backed by pluggable
// sink drivers.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Common errors for sink operations.
var (
	ErrClosed = errors.New("event log closed")
)

// Entry is one operator log line.
type Entry struct {
	// Seq orders entries within a sink. Assigned by Append.
	Seq           int64             `json:"seq" gorm:"primaryKey;autoIncrement"`
	ID            string            `json:"id" gorm:"uniqueIndex"`
	Time          time.Time         `json:"time" gorm:"index"`
	Level         string            `json:"level"`
	Message       string            `json:"message"`
	Kind          string            `json:"kind,omitempty"`
	InteractionID int64             `json:"interaction_id,omitempty" gorm:"index"`
	Attrs         map[string]string `json:"attrs,omitempty" gorm:"serializer:json"`
}

// TableName pins the sqlite table name.
func (Entry) TableName() string { return "event_log" }

// IsError reports whether the entry was logged at error level or above.
func (e Entry) IsError() bool {
	var l slog.Level
	if err := l.UnmarshalText([]byte(e.Level)); err != nil {
		return false
	}
	return l >= slog.LevelError
}

// Line renders the entry as "H:mm:ss_fffffff - message", with "ERROR: "
// in front of the message for errors.
func (e Entry) Line() string {
	t := e.Time
	prefix := ""
	if e.IsError() {
		prefix = "ERROR: "
	}
	return fmt.Sprintf("%d:%02d:%02d_%07d - %s%s",
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/100, prefix, e.Message)
}

// Query selects entries from a sink.
type Query struct {
	// AfterSeq returns only entries with a larger Seq.
	AfterSeq int64
	// Limit caps the number of entries. Zero means no limit.
	Limit int
}

// Sink stores entries. Implementations must be safe for concurrent use.
type Sink interface {
	// Init prepares the sink (create tables, directories, ...).
	Init(ctx context.Context) error

	// Append stores e and assigns its Seq.
	Append(ctx context.Context, e *Entry) error

	// List returns entries in Seq order.
	List(ctx context.Context, q Query) ([]Entry, error)

	// Close releases resources held by the sink.
	Close() error

	// Name returns the driver name.
	Name() string
}
