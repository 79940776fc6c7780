package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog/memory"
)

type mockService struct {
	prefix string
	conf   map[string]any
	closed *[]string
}

func (m *mockService) Handler() http.Handler { return http.NotFoundHandler() }
func (m *mockService) Prefix() string        { return m.prefix }
func (m *mockService) Close() error {
	if m.closed != nil {
		*m.closed = append(*m.closed, m.prefix)
	}
	return nil
}

func mockNewService(conf map[string]any, _ *deps.Deps, _ *slog.Logger) (Service, error) {
	return &mockService{prefix: "mock", conf: conf}, nil
}

func testDeps(t *testing.T) *deps.Deps {
	t.Helper()
	cfg := config.DevConfig()
	cfg.HTTP.Services = map[string]map[string]any{"a": {"max_body_bytes": int64(10)}}
	return &deps.Deps{
		Config:     cfg,
		Supervisor: desk.NewSupervisor(context.Background(), desk.Options{}),
		EventLog:   memory.New(0),
	}
}

func TestRegister_Duplicate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	if err := Register("desk", mockNewService); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if Get("desk") == nil {
		t.Fatal("Get() = nil after Register")
	}
	if err := Register("desk", mockNewService); err == nil {
		t.Fatal("duplicate Register() succeeded")
	}
}

func TestMustRegister_Panics(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	MustRegister("feed", mockNewService)
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate MustRegister did not panic")
		}
	}()
	MustRegister("feed", mockNewService)
}

func TestRegisteredServices_Sorted(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	for _, n := range []string{"feed", "desk", "admin"} {
		Register(n, mockNewService)
	}
	got := strings.Join(RegisteredServices(), ",")
	if got != "admin,desk,feed" {
		t.Errorf("RegisteredServices() = %s", got)
	}
}

func TestBuild(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	var closed []string
	Register("a", func(conf map[string]any, _ *deps.Deps, _ *slog.Logger) (Service, error) {
		return &mockService{prefix: "a", conf: conf, closed: &closed}, nil
	})
	Register("b", func(map[string]any, *deps.Deps, *slog.Logger) (Service, error) {
		return &mockService{prefix: "b", closed: &closed}, nil
	})
	Register("broken", func(map[string]any, *deps.Deps, *slog.Logger) (Service, error) {
		return nil, errors.New("bad config")
	})
	d := testDeps(t)
	log := slog.New(slog.DiscardHandler)

	svcs, err := Build([]string{"a", "b"}, d, log)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(svcs) != 2 || svcs[0].Prefix() != "a" || svcs[1].Prefix() != "b" {
		t.Fatalf("Build() = %v", svcs)
	}
	if conf := svcs[0].(*mockService).conf; conf["max_body_bytes"] != int64(10) {
		t.Errorf("service a conf = %v", conf)
	}

	if _, err := Build([]string{"a", "b", "broken"}, d, log); err == nil {
		t.Fatal("Build() with failing constructor succeeded")
	}
	if strings.Join(closed, ",") != "b,a" {
		t.Errorf("closed on failure = %v, want [b a]", closed)
	}

	if _, err := Build([]string{"missing"}, d, log); err == nil {
		t.Error("Build() of unregistered service succeeded")
	}
	if _, err := Build([]string{"a"}, &deps.Deps{}, log); !errors.Is(err, deps.ErrIncomplete) {
		t.Errorf("Build() with empty deps error = %v", err)
	}
}
