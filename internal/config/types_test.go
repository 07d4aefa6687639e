package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/idxauth-fetch/auth"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Indexes = IndexesConfig{}
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvalidPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen.Port = 70000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBothIndexSourcesConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Indexes = IndexesConfig{IndexesFile: "a.yaml", IndexesFolder: "b"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownNetrcMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Indexes = IndexesConfig{}
	cfg.Auth.Netrc.Mode = "sometimes"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadIndexSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Indexes = IndexesConfig{}
	cfg.Indexes = []auth.IndexSpec{{URL: "https://example.com/simple/", RootURL: "https://other.com/"}}
	require.Error(t, cfg.Validate())
}
