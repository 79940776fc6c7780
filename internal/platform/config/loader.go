package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr     *string
	LoggingLevel   *string
	LoggingFormat  *string
	BridgeURL      *string
	UserID         *string
	DialString     *string
	EventLogDriver *string
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`

	Logging      *LoggingConfig          `toml:"logging"`
	Session      *SessionConfig          `toml:"session"`
	Desk         *DeskConfig             `toml:"desk"`
	OutboundHTTP *outboundHTTPFileConfig `toml:"outbound_http"`
	EventLog     *EventLogConfig         `toml:"eventlog"`
	HTTP         *HTTPConfig             `toml:"http"`
}

// outboundHTTPFileConfig keeps insecure_skip_verify optional so that a
// section without it does not reset the preset.
type outboundHTTPFileConfig struct {
	TimeoutMS          int   `toml:"timeout_ms"`
	ConnectTimeoutMS   int   `toml:"connect_timeout_ms"`
	MaxResponseBytes   int64 `toml:"max_response_bytes"`
	InsecureSkipVerify *bool `toml:"insecure_skip_verify"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "prod"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// DefaultConfig returns the prod preset.
func DefaultConfig() *Config { return ProdConfig() }

// ProdConfig returns production defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:       string(ModeProd),
		ListenAddr: ":8750",
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			SinkLevel: "info",
		},
		Session: SessionConfig{
			RequestQueueSize: 64,
		},
		Desk: DeskConfig{
			DialString:     DefaultDialString,
			OwnerQueueSize: 256,
		},
		OutboundHTTP: OutboundHTTPConfig{
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxResponseBytes:   1048576,
			InsecureSkipVerify: false,
		},
		EventLog: EventLogConfig{
			Driver:   "memory",
			DataDir:  ".confdesk",
			Capacity: 10000,
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := ProdConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	cfg.Logging.SinkLevel = "debug"
	cfg.OutboundHTTP.InsecureSkipVerify = true
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			cfg.Logging.Format = fc.Logging.Format
		}
		if fc.Logging.SinkLevel != "" {
			cfg.Logging.SinkLevel = fc.Logging.SinkLevel
		}
	}

	if fc.Session != nil {
		if fc.Session.UserID != "" {
			cfg.Session.UserID = fc.Session.UserID
		}
		if fc.Session.BridgeURL != "" {
			cfg.Session.BridgeURL = fc.Session.BridgeURL
		}
		if fc.Session.RequestQueueSize != 0 {
			cfg.Session.RequestQueueSize = fc.Session.RequestQueueSize
		}
		if fc.Session.FeedToken != "" {
			cfg.Session.FeedToken = fc.Session.FeedToken
		}
	}

	if fc.Desk != nil {
		if fc.Desk.DialString != "" {
			cfg.Desk.DialString = fc.Desk.DialString
		}
		if fc.Desk.OwnerQueueSize != 0 {
			cfg.Desk.OwnerQueueSize = fc.Desk.OwnerQueueSize
		}
	}

	if fc.OutboundHTTP != nil {
		if fc.OutboundHTTP.TimeoutMS != 0 {
			cfg.OutboundHTTP.TimeoutMS = fc.OutboundHTTP.TimeoutMS
		}
		if fc.OutboundHTTP.ConnectTimeoutMS != 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = fc.OutboundHTTP.ConnectTimeoutMS
		}
		if fc.OutboundHTTP.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = fc.OutboundHTTP.MaxResponseBytes
		}
		if fc.OutboundHTTP.InsecureSkipVerify != nil {
			cfg.OutboundHTTP.InsecureSkipVerify = *fc.OutboundHTTP.InsecureSkipVerify
		}
	}

	if fc.EventLog != nil {
		if fc.EventLog.Driver != "" {
			cfg.EventLog.Driver = fc.EventLog.Driver
		}
		if fc.EventLog.DataDir != "" {
			cfg.EventLog.DataDir = fc.EventLog.DataDir
		}
		if fc.EventLog.Capacity != 0 {
			cfg.EventLog.Capacity = fc.EventLog.Capacity
		}
	}

	if fc.HTTP != nil && len(fc.HTTP.Services) > 0 {
		if cfg.HTTP.Services == nil {
			cfg.HTTP.Services = make(map[string]map[string]any)
		}
		for name, svcCfg := range fc.HTTP.Services {
			cfg.HTTP.Services[name] = svcCfg
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.Logging.Level, f.LoggingLevel)
	set(&cfg.Logging.Format, f.LoggingFormat)
	set(&cfg.Session.BridgeURL, f.BridgeURL)
	set(&cfg.Session.UserID, f.UserID)
	set(&cfg.Desk.DialString, f.DialString)
	set(&cfg.EventLog.Driver, f.EventLogDriver)
}

// validate checks enum-like and numeric fields and returns an error for
// invalid values.
func validate(cfg *Config) error {
	for key, level := range map[string]string{
		"logging.level":      cfg.Logging.Level,
		"logging.sink_level": cfg.Logging.SinkLevel,
	} {
		switch level {
		case "trace", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid %s %q: must be one of trace, debug, info, warn, error", key, level)
		}
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q: must be one of json, text", cfg.Logging.Format)
	}

	switch cfg.EventLog.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid eventlog.driver %q: must be one of memory, sqlite", cfg.EventLog.Driver)
	}
	if cfg.EventLog.Capacity < 0 {
		return fmt.Errorf("invalid eventlog.capacity %d: must not be negative", cfg.EventLog.Capacity)
	}

	if cfg.Session.RequestQueueSize <= 0 {
		return fmt.Errorf("invalid session.request_queue_size %d: must be positive", cfg.Session.RequestQueueSize)
	}
	if cfg.Desk.OwnerQueueSize <= 0 {
		return fmt.Errorf("invalid desk.owner_queue_size %d: must be positive", cfg.Desk.OwnerQueueSize)
	}
	if cfg.OutboundHTTP.TimeoutMS <= 0 || cfg.OutboundHTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("outbound_http timeouts must be positive")
	}

	return validateBridgeURL(cfg.Session.BridgeURL)
}

// validateBridgeURL checks session.bridge_url when set. It must be an
// absolute http or https URL without userinfo, query or fragment.
func validateBridgeURL(raw string) error {
	if raw == "" {
		return nil
	}
	if raw != strings.TrimSpace(raw) {
		return fmt.Errorf("invalid session.bridge_url %q: must not contain leading or trailing whitespace", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid session.bridge_url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid session.bridge_url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid session.bridge_url %q: must include a host", raw)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid session.bridge_url %q: must not include userinfo, query or fragment", raw)
	}
	return nil
}
