package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/99designs/keyring"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/idxauth-fetch/auth"
	"github.com/l0p7/idxauth-fetch/auth/providers"
	"github.com/l0p7/idxauth-fetch/internal/config"
	"github.com/l0p7/idxauth-fetch/internal/logging"
	"github.com/l0p7/idxauth-fetch/internal/metrics"
	"github.com/l0p7/idxauth-fetch/internal/server"
	"github.com/l0p7/idxauth-fetch/internal/templates"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "IDXAUTH", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	for _, skip := range cfg.SkippedIndexes {
		logger.Warn("index definition skipped", slog.String("kind", skip.Kind), slog.String("name", skip.Name), slog.String("reason", skip.Reason))
	}

	transport := buildTransport(logger, metricsRecorder, cfg)

	var watcher *config.IndexesWatcher
	if cfg.Server.Indexes.IndexesFile != "" || cfg.Server.Indexes.IndexesFolder != "" {
		w, err := loader.WatchIndexes(ctx, cfg.Server.Indexes, func(reg *auth.Registry, bundle config.IndexBundle) {
			transport.SetRegistry(reg)
			logger.Info("indexes reloaded", slog.Int("count", len(bundle.Indexes)))
		}, func(err error) {
			if err != nil {
				logger.Error("indexes watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("indexes watcher setup failed", slog.Any("error", err))
		} else {
			watcher = w
			defer watcher.Stop()
		}
	}

	client := &http.Client{Transport: transport}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/fetch", fetchHandler(client))

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// fetchHandler proxies ?url= through the credential-aware client, primarily
// so the demo binary has something to drive the middleware with. Its log
// lines use the correlation-aware logger the server's access log middleware
// attaches to the request context, so a caller-supplied correlation ID (via
// the configured correlation header) ties a fetch's logs back to its access
// log entry.
func fetchHandler(client *http.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := server.RequestLogger(r.Context())
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "missing url query parameter", http.StatusBadRequest)
			return
		}
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			logger.Error("fetch failed", slog.String("url", target), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Error("fetch response copy failed", slog.String("url", target), slog.Any("error", err))
		}
	}
}

// buildTransport wires netrc, the OS keyring, and the declarative known-URL
// providers into a single auth.Transport, the way cmd/main.go in the donor
// repo assembles its decision pipeline from configuration.
func buildTransport(logger *slog.Logger, rec *metrics.Recorder, cfg config.Config) *auth.Transport {
	mode := providers.NetrcAutomatic
	switch strings.ToLower(cfg.Auth.Netrc.Mode) {
	case "enabled":
		mode = providers.NetrcEnabled
	case "disabled":
		mode = providers.NetrcDisabled
	}
	netrcProvider := providers.NewNetrc(mode, cfg.Auth.Netrc.Path, func(err error) {
		logger.Warn("netrc parse failed, provider disabled", slog.Any("error", err))
	})

	var keyringProvider providers.Keyring
	if cfg.Auth.Keyring.Enabled {
		backends := make([]keyring.BackendType, 0, len(cfg.Auth.Keyring.Backends))
		for _, b := range cfg.Auth.Keyring.Backends {
			backends = append(backends, keyring.BackendType(b))
		}
		ring, err := providers.NewOSKeyring(cfg.Auth.Keyring.ServiceName, backends...)
		if err != nil {
			logger.Warn("keyring unavailable, disabling provider", slog.Any("error", err))
		} else {
			keyringProvider = ring
		}
	}

	envPolicy := templates.NewEnvPolicy(cfg.Server.Templates.TemplatesAllowEnv, cfg.Server.Templates.TemplatesAllowedEnv)
	renderer := templates.NewRenderer(envPolicy)

	specs := make([]providers.KnownSpec, 0, len(cfg.Auth.Known))
	for _, k := range cfg.Auth.Known {
		specs = append(specs, providers.KnownSpec{
			Name:          k.Name,
			HostPattern:   k.HostPattern,
			UsernameConst: k.UsernameConst,
			TokenTemplate: k.TokenTemplate,
		})
	}
	known, err := providers.CompileKnownProviders(specs, renderer)
	if err != nil {
		logger.Error("known-url providers failed to compile", slog.Any("error", err))
		os.Exit(1)
	}

	registry, err := auth.NewRegistry(cfg.Indexes)
	if err != nil {
		logger.Error("index registry build failed", slog.Any("error", err))
		os.Exit(1)
	}

	return auth.NewTransport(nil, auth.Config{
		Netrc:             netrcProvider,
		Keyring:           keyringProvider,
		Known:             known,
		Cache:             auth.NewCache(),
		Registry:          registry,
		OnlyAuthenticated: cfg.Auth.OnlyAuthenticated,
		Logger:            logger,
		Metrics:           rec,
	})
}
