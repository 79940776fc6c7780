package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// ErrNoSession is returned when no session is up.
var ErrNoSession = errors.New("no active session")

// closeTimeout bounds how long a torn down desk may take to drain.
const closeTimeout = 5 * time.Second

// Supervisor follows the session connection state. A fresh Desk is built
// every time the connection comes up and discarded when it goes away.
type Supervisor struct {
	ctx  context.Context
	opts Options
	log  *slog.Logger

	mu    sync.RWMutex
	desk  *Desk
	state session.ConnectionEvent
}

// NewSupervisor returns a supervisor with no active desk. Desks it starts
// stop when ctx ends.
func NewSupervisor(ctx context.Context, opts Options) *Supervisor {
	return &Supervisor{
		ctx:   ctx,
		opts:  opts,
		log:   logutil.NoopIfNil(opts.Logger).With("component", "supervisor"),
		state: session.ConnectionEvent{State: session.StateNone},
	}
}

// OnConnectionState records a connection change and builds or tears down
// the desk accordingly.
func (s *Supervisor) OnConnectionState(ev session.ConnectionEvent) {
	msg := fmt.Sprintf("Connection state: %s (%s) [%s]", ev.State, ev.Message, ev.Reason)
	if ev.State == session.StateDown {
		s.log.Warn(msg, "state", string(ev.State))
	} else {
		s.log.Info(msg, "state", string(ev.State))
	}

	s.mu.Lock()
	old := s.desk
	s.desk = nil
	s.state = ev
	if ev.State == session.StateUp {
		s.desk = New(s.opts)
		s.desk.Start(s.ctx)
	}
	s.mu.Unlock()

	if old != nil {
		s.teardown(old)
	}
}

func (s *Supervisor) teardown(d *Desk) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), closeTimeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		s.log.Error("desk did not drain", "error", err)
	}
}

// State returns the last connection event.
func (s *Supervisor) State() session.ConnectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Desk returns the active desk, or ErrNoSession.
func (s *Supervisor) Desk() (*Desk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.desk == nil {
		return nil, ErrNoSession
	}
	return s.desk, nil
}

// Deliver forwards a batch to the active desk. Without one the batch is
// logged and dropped.
func (s *Supervisor) Deliver(ctx context.Context, b session.Batch) error {
	d, err := s.Desk()
	if err != nil {
		s.log.Warn("batch dropped: no active session", "notifications", b.Len())
		return err
	}
	return d.Deliver(ctx, b)
}

// Close tears down the active desk.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	d := s.desk
	s.desk = nil
	s.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Close(ctx)
}
