// Package deps holds the dependencies shared by the HTTP services.
package deps

import (
	"errors"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
)

// ErrIncomplete is returned by Validate when a required field is nil.
var ErrIncomplete = errors.New("shared deps incomplete")

// Deps is built once in main and handed to every service constructor.
type Deps struct {
	Config     *config.Config
	Supervisor *desk.Supervisor
	// EventLog is the operator log sink read back by GET /api/log.
	EventLog eventlog.Sink
}

// Validate reports which required dependency is missing.
func (d *Deps) Validate() error {
	switch {
	case d == nil:
		return ErrIncomplete
	case d.Config == nil:
		return errors.Join(ErrIncomplete, errors.New("config is nil"))
	case d.Supervisor == nil:
		return errors.Join(ErrIncomplete, errors.New("supervisor is nil"))
	case d.EventLog == nil:
		return errors.Join(ErrIncomplete, errors.New("event log is nil"))
	}
	return nil
}
