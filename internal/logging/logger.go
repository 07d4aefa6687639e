package logging

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"log/slog"

	"github.com/l0p7/idxauth-fetch/internal/config"
)

// New shapes slog so emitted telemetry matches the runtime policy described
// in the design docs. The returned logger carries the bound listen address
// as a static attribute, so logs from several replicas behind the same
// aggregator can still be told apart; per-request correlation IDs (driven by
// cfg.Logging.CorrelationHeader) are attached later, per request, by the
// server's access log middleware rather than baked in here.
func New(cfg config.ServerConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("logging: unsupported level %q", cfg.Logging.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Logging.Format)
	}

	logger := slog.New(handler).With(slog.String("component", "idxauth-fetch"))
	if addr := listenAddr(cfg); addr != "" {
		logger = logger.With(slog.String("listen_addr", addr))
	}
	return logger, nil
}

// listenAddr formats the configured bind address, tolerating a zero port
// (still unassigned at logger construction time, e.g. "listen on any port").
func listenAddr(cfg config.ServerConfig) string {
	if cfg.Listen.Address == "" && cfg.Listen.Port == 0 {
		return ""
	}
	return net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
}
