package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/api"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog/memory"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/recorder"
)

func newService(t *testing.T, token string, conf map[string]any) (*desk.Supervisor, http.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sup := desk.NewSupervisor(ctx, desk.Options{UserID: "alice", Requester: &recorder.Requester{}})
	t.Cleanup(func() {
		sup.Close(context.Background())
		cancel()
	})

	cfg := config.DevConfig()
	cfg.Session.FeedToken = token
	svc, err := New(conf, &deps.Deps{Config: cfg, Supervisor: sup, EventLog: memory.New(0)}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if svc.Prefix() != "feed" {
		t.Errorf("Prefix() = %q", svc.Prefix())
	}
	return sup, svc.Handler()
}

func post(h http.Handler, path, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

const addedBatch = `{"added": [
	{"id": 100, "attributes": {"state": "connected", "capabilities": "pickup|hold|mute|disconnect|conference"}},
	{"id": 200, "attributes": {"state": "alerting", "capabilities": "pickup"}}
]}`

func TestService_ConnectionThenBatch(t *testing.T) {
	sup, h := newService(t, "", map[string]any{"sync": true})

	if rr := post(h, "/batches", "", addedBatch); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("batch before connection = %d, want 503", rr.Code)
	}

	rr := post(h, "/connection", "", `{"state": "up", "message": "Connected", "reason": "login"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /connection = %d: %s", rr.Code, rr.Body.String())
	}
	var ev session.ConnectionEvent
	json.NewDecoder(rr.Body).Decode(&ev)
	if ev.State != session.StateUp || ev.Reason != "login" {
		t.Errorf("connection state = %+v", ev)
	}

	rr = post(h, "/batches", "", addedBatch)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /batches = %d: %s", rr.Code, rr.Body.String())
	}
	var resp BatchResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Notifications != 2 || resp.Stats == nil || resp.Stats.Applied != 2 {
		t.Errorf("batch response = %+v", resp)
	}

	// A duplicate add is skipped, not an error.
	rr = post(h, "/batches", "", `{"added": [{"id": 100}]}`)
	json.NewDecoder(rr.Body).Decode(&resp)
	if rr.Code != http.StatusOK || resp.Stats.Skipped != 1 {
		t.Errorf("duplicate add = %d %+v", rr.Code, resp.Stats)
	}

	d, _ := sup.Desk()
	snap, _ := d.Snapshot(context.Background())
	if len(snap.Interactions) != 2 {
		t.Errorf("interactions = %d, want 2", len(snap.Interactions))
	}

	post(h, "/connection", "", `{"state": "down", "message": "Lost", "reason": "network"}`)
	if _, err := sup.Desk(); err == nil {
		t.Error("desk survived connection down")
	}
}

func TestService_AsyncDelivery(t *testing.T) {
	sup, h := newService(t, "", nil)
	post(h, "/connection", "", `{"state": "up"}`)

	rr := post(h, "/batches", "", addedBatch)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("POST /batches = %d", rr.Code)
	}
	var resp BatchResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Notifications != 2 || resp.Stats != nil {
		t.Errorf("async response = %+v", resp)
	}

	// Snapshot is queued behind the batch on the owner loop.
	d, _ := sup.Desk()
	snap, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Interactions) != 2 {
		t.Errorf("interactions = %d, want 2", len(snap.Interactions))
	}
}

func TestService_Rejections(t *testing.T) {
	_, h := newService(t, "s3cret", map[string]any{"max_body_bytes": 64})

	tests := []struct {
		name, path, token, body string
		status                  int
		reason                  string
	}{
		{"no token", "/batches", "", addedBatch, http.StatusUnauthorized, api.ReasonUnauthenticated},
		{"wrong token", "/connection", "nope", `{"state":"up"}`, http.StatusUnauthorized, api.ReasonUnauthenticated},
		{"malformed", "/batches", "s3cret", `{"added": [`, http.StatusBadRequest, api.ReasonInvalidBatch},
		{"unknown field", "/batches", "s3cret", `{"moved": []}`, http.StatusBadRequest, api.ReasonInvalidBatch},
		{"too large", "/batches", "s3cret", addedBatch, http.StatusRequestEntityTooLarge, api.ReasonTooLarge},
		{"bad state", "/connection", "s3cret", `{"state":"sideways"}`, http.StatusBadRequest, api.ReasonBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(h, tt.path, tt.token, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			var env api.ErrorEnvelope
			json.NewDecoder(rr.Body).Decode(&env)
			if env.Error.ReasonCode != tt.reason {
				t.Errorf("reason = %q, want %q", env.Error.ReasonCode, tt.reason)
			}
		})
	}

	if rr := post(h, "/connection", "s3cret", `{"state":"up"}`); rr.Code != http.StatusOK {
		t.Errorf("authorized connection = %d", rr.Code)
	}
}
