// Package recorder provides an in-process session.Requester that records
// every request instead of sending it. Replay mode and tests use it.
package recorder

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
)

// Request is one recorded call.
type Request struct {
	Op          string           `json:"op"`
	IDs         []interaction.ID `json:"ids,omitempty"`
	On          *bool            `json:"on,omitempty"`
	Destination string           `json:"destination,omitempty"`
}

func (r Request) String() string {
	var b strings.Builder
	b.WriteString(r.Op)
	for _, id := range r.IDs {
		fmt.Fprintf(&b, " %d", id)
	}
	if r.On != nil {
		fmt.Fprintf(&b, " on=%t", *r.On)
	}
	if r.Destination != "" {
		b.WriteString(" " + r.Destination)
	}
	return b.String()
}

// Requester records requests. The zero value is ready to use.
type Requester struct {
	mu       sync.Mutex
	requests []Request

	// Fail, when set, is returned by every call; the request is still recorded.
	Fail error
}

func (r *Requester) record(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.Fail
}

func (r *Requester) Pickup(id interaction.ID) error {
	return r.record(Request{Op: "pickup", IDs: []interaction.ID{id}})
}

func (r *Requester) Hold(id interaction.ID, on bool) error {
	return r.record(Request{Op: "hold", IDs: []interaction.ID{id}, On: &on})
}

func (r *Requester) Mute(id interaction.ID, on bool) error {
	return r.record(Request{Op: "mute", IDs: []interaction.ID{id}, On: &on})
}

func (r *Requester) Disconnect(id interaction.ID) error {
	return r.record(Request{Op: "disconnect", IDs: []interaction.ID{id}})
}

func (r *Requester) MakeConference(ids []interaction.ID) error {
	return r.record(Request{Op: "conference", IDs: slices.Clone(ids)})
}

func (r *Requester) MakeCall(destination string) error {
	return r.record(Request{Op: "call", Destination: destination})
}

// Requests returns a copy of everything recorded so far.
func (r *Requester) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}

// Reset drops the recorded requests.
func (r *Requester) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}
