// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Config holds the desk configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8750"
	ListenAddr string `toml:"listen_addr"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Session holds settings for the telephony session collaborator.
	Session SessionConfig `toml:"session"`

	// Desk holds settings for the interaction desk.
	Desk DeskConfig `toml:"desk"`

	// OutboundHTTP configuration for requests sent to the bridge.
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// EventLog configures the operator log sink.
	EventLog EventLogConfig `toml:"eventlog"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in prod mode, debug in dev mode.
	Level string `toml:"level"`

	// Format is the handler format: json or text.
	Format string `toml:"format"`

	// SinkLevel is the minimum level copied into the operator log.
	// Default: info.
	SinkLevel string `toml:"sink_level"`
}

// SessionConfig holds settings for the telephony session.
type SessionConfig struct {
	// UserID is the signed-in user. Conference parties outside this
	// user's queue are reported as other parties.
	UserID string `toml:"user_id"`

	// BridgeURL is the base URL of the telephony bridge. Empty means
	// requests are only recorded locally.
	BridgeURL string `toml:"bridge_url"`

	// RequestQueueSize bounds the requests waiting for submission.
	RequestQueueSize int `toml:"request_queue_size"`

	// FeedToken, when set, is required as a bearer token on feed requests.
	FeedToken string `toml:"feed_token"`
}

// DeskConfig holds settings for the interaction desk.
type DeskConfig struct {
	// DialString is the initial destination for the dial action.
	DialString string `toml:"dial_string"`

	// OwnerQueueSize bounds the work waiting for the owner loop.
	OwnerQueueSize int `toml:"owner_queue_size"`
}

// EventLogConfig holds operator log settings.
type EventLogConfig struct {
	// Driver is the sink driver: memory or sqlite.
	Driver string `toml:"driver"`

	// DataDir is where the sqlite driver keeps its database.
	DataDir string `toml:"data_dir"`

	// Capacity caps the memory driver. Zero means unbounded.
	Capacity int `toml:"capacity"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// DefaultDialString is the dial destination used when none is configured.
const DefaultDialString = "3172222222"

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	// Return a copy to prevent mutation
	return maps.Clone(svcCfg)
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	sb.WriteString("  Logging: {\n")
	fmt.Fprintf(&sb, "    Level: %q,\n", c.Logging.Level)
	fmt.Fprintf(&sb, "    Format: %q,\n", c.Logging.Format)
	fmt.Fprintf(&sb, "    SinkLevel: %q,\n", c.Logging.SinkLevel)
	sb.WriteString("  },\n")
	sb.WriteString("  Session: {\n")
	fmt.Fprintf(&sb, "    UserID: %q,\n", c.Session.UserID)
	fmt.Fprintf(&sb, "    BridgeURL: %q,\n", c.Session.BridgeURL)
	fmt.Fprintf(&sb, "    RequestQueueSize: %d,\n", c.Session.RequestQueueSize)
	if c.Session.FeedToken != "" {
		sb.WriteString("    FeedToken: [REDACTED],\n")
	} else {
		sb.WriteString("    FeedToken: \"\",\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString("  Desk: {\n")
	fmt.Fprintf(&sb, "    DialString: %q,\n", c.Desk.DialString)
	fmt.Fprintf(&sb, "    OwnerQueueSize: %d,\n", c.Desk.OwnerQueueSize)
	sb.WriteString("  },\n")
	sb.WriteString("  OutboundHTTP: {\n")
	fmt.Fprintf(&sb, "    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS)
	fmt.Fprintf(&sb, "    ConnectTimeoutMS: %d,\n", c.OutboundHTTP.ConnectTimeoutMS)
	fmt.Fprintf(&sb, "    MaxResponseBytes: %d,\n", c.OutboundHTTP.MaxResponseBytes)
	fmt.Fprintf(&sb, "    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify)
	sb.WriteString("  },\n")
	sb.WriteString("  EventLog: {\n")
	fmt.Fprintf(&sb, "    Driver: %q,\n", c.EventLog.Driver)
	fmt.Fprintf(&sb, "    DataDir: %q,\n", c.EventLog.DataDir)
	fmt.Fprintf(&sb, "    Capacity: %d,\n", c.EventLog.Capacity)
	sb.WriteString("  },\n")
	sb.WriteString("  HTTP: {\n")
	fmt.Fprintf(&sb, "    ServicesCount: %d,\n", len(c.HTTP.Services))
	if len(c.HTTP.Services) > 0 {
		names := slices.Sorted(maps.Keys(c.HTTP.Services))
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = fmt.Sprintf("%q", n)
		}
		fmt.Fprintf(&sb, "    Services: [%s],\n", strings.Join(quoted, ", "))
	}
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
