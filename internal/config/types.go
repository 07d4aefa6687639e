package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/l0p7/idxauth-fetch/auth"
)

// Config holds every bootstrap option for idxauth-fetch, plus the index
// definitions once the loader resolves the configured sources.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Auth   AuthConfig   `koanf:"auth"`

	// Indexes holds the index definitions loaded via IndexSources; excluded
	// from koanf since it is populated by a dedicated multi-format loader,
	// not by the primary config document.
	Indexes []auth.IndexSpec `koanf:"-"`
	// IndexSources records which files contributed index definitions.
	IndexSources []string `koanf:"-"`
	// SkippedIndexes captures duplicate index definitions the loader
	// skipped; other invalid definitions fail Validate instead.
	SkippedIndexes []DefinitionSkip `koanf:"-"`
}

// ServerConfig collects the bootstrap knobs for the demo HTTP surface.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	Indexes   IndexesConfig   `koanf:"indexes"`
	Templates TemplatesConfig `koanf:"templates"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// IndexesConfig announces how index documents are sourced.
type IndexesConfig struct {
	IndexesFolder string `koanf:"indexesFolder"`
	IndexesFile   string `koanf:"indexesFile"`
}

// TemplatesConfig captures the environment variables known-provider token
// templates may read via the env/expandenv helpers.
type TemplatesConfig struct {
	TemplatesAllowEnv   bool     `koanf:"templatesAllowEnv"`
	TemplatesAllowedEnv []string `koanf:"templatesAllowedEnv"`
}

// AuthConfig controls the credential-discovery providers and global policy.
type AuthConfig struct {
	OnlyAuthenticated bool               `koanf:"onlyAuthenticated"`
	Netrc             NetrcConfig        `koanf:"netrc"`
	Keyring           KeyringConfig      `koanf:"keyring"`
	Known             []KnownProviderCfg `koanf:"known"`
}

// NetrcConfig controls the netrc credential provider.
type NetrcConfig struct {
	Mode string `koanf:"mode"` // "auto" (default), "enabled", "disabled"
	Path string `koanf:"path"` // only meaningful when mode is "enabled"
}

// KeyringConfig controls the OS keyring credential provider.
type KeyringConfig struct {
	Enabled     bool     `koanf:"enabled"`
	ServiceName string   `koanf:"serviceName"`
	Backends    []string `koanf:"backends"` // empty = let 99designs/keyring pick
}

// KnownProviderCfg is the declarative form of a known-URL provider rule.
type KnownProviderCfg struct {
	Name          string `koanf:"name"`
	HostPattern   string `koanf:"hostPattern"`
	UsernameConst string `koanf:"usernameConst"`
	TokenTemplate string `koanf:"tokenTemplate"`
}

// DefinitionSkip describes a configuration artifact that the loader
// intentionally ignored because it violated invariants (for example
// duplicate index URLs across files). Operators can surface these in health
// checks without re-parsing raw files.
type DefinitionSkip struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Sources []string `json:"sources"`
}

// Validate enforces invariants that keep the runtime predictable before
// serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.Indexes.IndexesFolder != "" && c.Server.Indexes.IndexesFile != "" {
		return errors.New("config: indexesFolder and indexesFile are mutually exclusive")
	}
	switch strings.TrimSpace(strings.ToLower(c.Auth.Netrc.Mode)) {
	case "", "auto", "enabled", "disabled":
	default:
		return fmt.Errorf("config: auth.netrc.mode unsupported: %s", c.Auth.Netrc.Mode)
	}
	if c.Auth.Netrc.Mode == "enabled" && strings.TrimSpace(c.Auth.Netrc.Path) == "" {
		return errors.New("config: auth.netrc.path required when mode is enabled")
	}
	for i, known := range c.Auth.Known {
		if strings.TrimSpace(known.HostPattern) == "" {
			return fmt.Errorf("config: auth.known[%d].hostPattern required", i)
		}
	}
	for i, spec := range c.Indexes {
		if _, err := auth.CompileIndex(spec); err != nil {
			return fmt.Errorf("config: indexes[%d]: %w", i, err)
		}
	}
	return nil
}

// DefaultConfig returns the baseline values that align with the design
// defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
			// Indexes and Templates are left unset by default: an unconfigured
			// index source yields an empty registry rather than failing
			// startup over a directory the operator never created.
			Indexes:   IndexesConfig{},
			Templates: TemplatesConfig{},
		},
		Auth: AuthConfig{
			Netrc: NetrcConfig{Mode: "auto"},
		},
	}
}
