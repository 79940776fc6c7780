// Package main is the entrypoint for the confdesk server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
	httpclient "github.com/MahdiBaghbani/confdesk-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/confdesk-go/internal/session"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/bridge"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/recorder"

	// Register event log drivers and HTTP services
	_ "github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog/memory"
	_ "github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog/sqlite"
	_ "github.com/MahdiBaghbani/confdesk-go/internal/services/loader"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingFormat := flag.String("logging-format", "", "Log format: json or text (overrides config)")
	bridgeURL := flag.String("bridge-url", "", "Telephony bridge base URL (overrides config)")
	userID := flag.String("user-id", "", "Signed-in user id (overrides config)")
	dialString := flag.String("dial-string", "", "Initial dial destination (overrides config)")
	eventLogDriver := flag.String("eventlog-driver", "", "Operator log driver: memory or sqlite (overrides config)")
	replayPath := flag.String("replay", "", "Replay a JSONL notification file, print the final state and exit")
	flag.Parse()

	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:     listenAddr,
			LoggingLevel:   loggingLevel,
			LoggingFormat:  loggingFormat,
			BridgeURL:      bridgeURL,
			UserID:         userID,
			DialString:     dialString,
			EventLogDriver: eventLogDriver,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Levels were validated by config.Load.
	level, _ := logutil.ParseLevel(cfg.Logging.Level)
	sinkLevel, _ := logutil.ParseLevel(cfg.Logging.SinkLevel)
	primary := logutil.NewHandler(os.Stdout, cfg.Logging.Format, level)

	if *replayPath != "" {
		os.Exit(runReplay(*replayPath, cfg, slog.New(primary)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := eventlog.Open(ctx, &eventlog.DriverConfig{
		Driver:   cfg.EventLog.Driver,
		DataDir:  cfg.EventLog.DataDir,
		Capacity: cfg.EventLog.Capacity,
	})
	if err != nil {
		slog.New(primary).Error("failed to open event log", "driver", cfg.EventLog.Driver, "error", err)
		os.Exit(1)
	}
	logHandler := eventlog.NewHandler(primary, sink, sinkLevel)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	requester, closeRequester, err := newRequester(cfg, logger)
	if err != nil {
		logger.Error("failed to create requester", "error", err)
		os.Exit(1)
	}

	sup := desk.NewSupervisor(ctx, desk.Options{
		UserID:     cfg.Session.UserID,
		DialString: cfg.Desk.DialString,
		QueueSize:  cfg.Desk.OwnerQueueSize,
		Requester:  requester,
		Logger:     logger,
	})

	shared := &deps.Deps{Config: cfg, Supervisor: sup, EventLog: sink}
	svcs, err := service.Build(service.CoreServices, shared, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, svcs, func() string { return string(sup.State().State) })
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()
	logger.Info("server started, waiting for the bridge to report a connection")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	exit := 0
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exit = 1
	}
	if err := sup.Close(shutdownCtx); err != nil {
		logger.Error("desk did not drain", "error", err)
		exit = 1
	}
	if err := closeRequester(shutdownCtx); err != nil {
		logger.Error("requester did not drain", "error", err)
		exit = 1
	}
	if n := logHandler.Dropped(); n > 0 {
		logger.Warn("operator log entries dropped", "count", n)
	}
	logger.Info("server stopped")
	if err := sink.Close(); err != nil {
		slog.New(primary).Error("failed to close event log", "error", err)
		exit = 1
	}
	os.Exit(exit)
}

// newRequester returns the bridge client when a bridge URL is configured
// and a recording requester otherwise.
func newRequester(cfg *config.Config, logger *slog.Logger) (session.Requester, func(context.Context) error, error) {
	if cfg.Session.BridgeURL == "" {
		logger.Warn("no bridge_url configured: requests are recorded, not sent")
		return &recorder.Requester{}, func(context.Context) error { return nil }, nil
	}
	c, err := bridge.New(bridge.Options{
		BaseURL:   cfg.Session.BridgeURL,
		QueueSize: cfg.Session.RequestQueueSize,
		HTTP:      httpclient.New(&cfg.OutboundHTTP),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func runReplay(path string, cfg *config.Config, logger *slog.Logger) int {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open replay file", "path", path, "error", err)
		return 1
	}
	defer f.Close()

	rep, err := replay(context.Background(), f, desk.Options{
		UserID:     cfg.Session.UserID,
		DialString: cfg.Desk.DialString,
		QueueSize:  cfg.Desk.OwnerQueueSize,
	}, logger)
	if err != nil {
		logger.Error("replay failed", "path", path, "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		logger.Error("failed to write report", "error", err)
		return 1
	}
	return 0
}
