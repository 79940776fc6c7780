package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/confdesk-go/internal/platform/http/client"
)

func testConfig() *config.OutboundHTTPConfig {
	return &config.OutboundHTTPConfig{
		TimeoutMS:        2000,
		ConnectTimeoutMS: 500,
		MaxResponseBytes: 64,
	}
}

func TestPostJSON(t *testing.T) {
	var gotBody, gotType, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = strings.TrimSpace(string(b))
		gotType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := httpclient.New(testConfig())
	h := http.Header{}
	h.Set("X-Request-ID", "abc")
	data, err := c.PostJSON(context.Background(), srv.URL+"/calls", map[string]string{"destination": "100"}, h)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("response = %q", data)
	}
	if gotBody != `{"destination":"100"}` {
		t.Errorf("request body = %q", gotBody)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotHeader != "abc" {
		t.Errorf("X-Request-ID = %q", gotHeader)
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such interaction", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := httpclient.New(testConfig()).PostJSON(context.Background(), srv.URL, nil, nil)
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Status != http.StatusNotFound || se.Body != "no such interaction" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestPostJSON_RedirectBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	_, err := httpclient.New(testConfig()).PostJSON(context.Background(), srv.URL, nil, nil)
	if !errors.Is(err, httpclient.ErrRedirectBlocked) {
		t.Errorf("error = %v, want ErrRedirectBlocked", err)
	}
}

func TestPostJSON_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 65)))
	}))
	defer srv.Close()

	_, err := httpclient.New(testConfig()).PostJSON(context.Background(), srv.URL, nil, nil)
	if !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Errorf("error = %v, want ErrResponseTooLarge", err)
	}
}

func TestPostJSON_InvalidURL(t *testing.T) {
	_, err := httpclient.New(nil).PostJSON(context.Background(), "://bad", nil, nil)
	if !errors.Is(err, httpclient.ErrInvalidURL) {
		t.Errorf("error = %v, want ErrInvalidURL", err)
	}
}
