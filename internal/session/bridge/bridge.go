// Package bridge implements session.Requester against a telephony bridge
// reachable over HTTP. Requests are queued and posted by a single worker so
// callers never wait on the network.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
)

// DefaultQueueSize is used when Options.QueueSize is not positive.
const DefaultQueueSize = 64

// Poster posts a JSON body. *client.Client implements it.
type Poster interface {
	PostJSON(ctx context.Context, url string, body any, header http.Header) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	QueueSize int
	// Timeout bounds one submission. Zero means no extra bound beyond the
	// poster's own timeout.
	Timeout time.Duration
	HTTP    Poster
	Logger  *slog.Logger
}

type job struct {
	op   string
	path string
	body any
}

type toggleBody struct {
	On bool `json:"on"`
}

type conferenceBody struct {
	InteractionIDs []interaction.ID `json:"interaction_ids"`
}

type callBody struct {
	Destination string `json:"destination"`
}

// Client is a queued session.Requester.
type Client struct {
	base    string
	http    Poster
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}

	submitted atomic.Uint64
	failed    atomic.Uint64
}

var _ session.Requester = (*Client)(nil)

// New validates opts and starts the submission worker.
func New(opts Options) (*Client, error) {
	if opts.HTTP == nil {
		return nil, errors.New("bridge: http poster is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("bridge: invalid base url %q", opts.BaseURL)
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	c := &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTP,
		log:     logutil.NoopIfNil(opts.Logger).With("component", "bridge"),
		timeout: opts.Timeout,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Pickup queues an answer request for id.
func (c *Client) Pickup(id interaction.ID) error {
	return c.enqueue(job{op: "pickup", path: fmt.Sprintf("/interactions/%d/pickup", id)})
}

// Hold queues a request to put id on hold (on) or retrieve it.
func (c *Client) Hold(id interaction.ID, on bool) error {
	return c.enqueue(job{op: "hold", path: fmt.Sprintf("/interactions/%d/hold", id), body: toggleBody{On: on}})
}

// Mute queues a request to mute or unmute id.
func (c *Client) Mute(id interaction.ID, on bool) error {
	return c.enqueue(job{op: "mute", path: fmt.Sprintf("/interactions/%d/mute", id), body: toggleBody{On: on}})
}

// Disconnect queues a hang-up request for id.
func (c *Client) Disconnect(id interaction.ID) error {
	return c.enqueue(job{op: "disconnect", path: fmt.Sprintf("/interactions/%d/disconnect", id)})
}

// MakeConference queues a request joining ids into one conference. At
// least two ids are required.
func (c *Client) MakeConference(ids []interaction.ID) error {
	if len(ids) < 2 {
		return fmt.Errorf("bridge: a conference needs at least two interactions, got %d", len(ids))
	}
	return c.enqueue(job{op: "conference", path: "/conferences", body: conferenceBody{InteractionIDs: append([]interaction.ID(nil), ids...)}})
}

// MakeCall queues an outbound call to destination.
func (c *Client) MakeCall(destination string) error {
	if strings.TrimSpace(destination) == "" {
		return errors.New("bridge: empty destination")
	}
	return c.enqueue(job{op: "call", path: "/calls", body: callBody{Destination: destination}})
}

func (c *Client) enqueue(j job) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return session.ErrClosed
	}
	select {
	case c.queue <- j:
		return nil
	default:
		return fmt.Errorf("%w: %s dropped", session.ErrQueueFull, j.op)
	}
}

func (c *Client) run() {
	defer close(c.done)
	for j := range c.queue {
		c.submit(j)
	}
}

func (c *Client) submit(j job) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqID := uuid.NewString()
	h := http.Header{}
	h.Set("X-Request-ID", reqID)

	if _, err := c.http.PostJSON(ctx, c.base+j.path, j.body, h); err != nil {
		c.failed.Add(1)
		c.log.Error("bridge request failed", "op", j.op, "path", j.path, "request_id", reqID, "error", err)
		return
	}
	c.submitted.Add(1)
	c.log.Debug("bridge request submitted", "op", j.op, "path", j.path, "request_id", reqID)
}

// Stats returns the number of submitted and failed requests.
func (c *Client) Stats() (submitted, failed uint64) {
	return c.submitted.Load(), c.failed.Load()
}

// Close stops accepting requests and waits until queued ones are
// submitted or ctx ends.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
