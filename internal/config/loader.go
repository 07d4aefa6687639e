package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot, including the index documents
// referenced by server.indexes.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.indexes.indexesfolder":         "server.indexes.indexesFolder",
			"server.indexes.indexesfile":           "server.indexes.indexesFile",
			"server.templates.templatesallowenv":   "server.templates.templatesAllowEnv",
			"server.templates.templatesallowedenv": "server.templates.templatesAllowedEnv",
			"server.logging.correlationheader":     "server.logging.correlationHeader",
			"auth.onlyauthenticated":               "auth.onlyAuthenticated",
			"auth.keyring.servicename":             "auth.keyring.serviceName",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (AUTH__KEYRING__ENABLED -> auth.keyring.enabled).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so LISTEN_PORT collapses into
			// listenport when callers choose not to use double underscores
			// for object nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	bundle, err := loadIndexes(ctx, cfg.Server.Indexes)
	if err != nil {
		return Config{}, err
	}
	cfg.Indexes = bundle.Indexes
	cfg.IndexSources = bundle.Sources
	cfg.SkippedIndexes = bundle.Skipped

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parserFor selects a koanf parser by file extension, supporting the three
// formats index/config documents may arrive in.
func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".json"):
		return json.Parser()
	case strings.HasSuffix(path, ".toml"):
		return toml.Parser()
	default:
		return yaml.Parser()
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap
// provider.
func structToMap(cfg Config) map[string]any {
	known := make([]map[string]any, 0, len(cfg.Auth.Known))
	for _, k := range cfg.Auth.Known {
		known = append(known, map[string]any{
			"name":          k.Name,
			"hostPattern":   k.HostPattern,
			"usernameConst": k.UsernameConst,
			"tokenTemplate": k.TokenTemplate,
		})
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
			"indexes": map[string]any{
				"indexesFolder": cfg.Server.Indexes.IndexesFolder,
				"indexesFile":   cfg.Server.Indexes.IndexesFile,
			},
			"templates": map[string]any{
				"templatesAllowEnv":   cfg.Server.Templates.TemplatesAllowEnv,
				"templatesAllowedEnv": cfg.Server.Templates.TemplatesAllowedEnv,
			},
		},
		"auth": map[string]any{
			"onlyAuthenticated": cfg.Auth.OnlyAuthenticated,
			"netrc": map[string]any{
				"mode": cfg.Auth.Netrc.Mode,
				"path": cfg.Auth.Netrc.Path,
			},
			"keyring": map[string]any{
				"enabled":     cfg.Auth.Keyring.Enabled,
				"serviceName": cfg.Auth.Keyring.ServiceName,
				"backends":    cfg.Auth.Keyring.Backends,
			},
			"known": known,
		},
	}
}
