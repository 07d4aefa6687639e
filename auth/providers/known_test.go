package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/idxauth-fetch/internal/templates"
)

func newTestRenderer(t *testing.T) *templates.Renderer {
	t.Helper()
	policy := templates.NewEnvPolicy(true, []string{"TEST_TOKEN"})
	return templates.NewRenderer(policy)
}

func TestKnownProvidersMatchesHostPattern(t *testing.T) {
	t.Setenv("TEST_TOKEN", "abc123")
	renderer := newTestRenderer(t)

	known, err := CompileKnownProviders([]KnownSpec{
		{Name: "test-host", HostPattern: `^example\.com$`, UsernameConst: "token", TokenTemplate: `{{env "TEST_TOKEN"}}`},
	}, renderer)
	require.NoError(t, err)

	user, pass, ok := known.Lookup(mustHTTPURL(t, "https://example.com/path"))
	require.True(t, ok)
	require.Equal(t, "token", user)
	require.Equal(t, "abc123", pass)
}

func TestKnownProvidersSkipsEmptyRenderedToken(t *testing.T) {
	renderer := newTestRenderer(t)
	known, err := CompileKnownProviders([]KnownSpec{
		{Name: "test-host", HostPattern: `^example\.com$`, UsernameConst: "token", TokenTemplate: `{{env "TEST_TOKEN_UNSET"}}`},
	}, renderer)
	require.NoError(t, err)

	_, _, ok := known.Lookup(mustHTTPURL(t, "https://example.com/path"))
	require.False(t, ok)
}

func TestKnownProvidersNoMatchingHost(t *testing.T) {
	t.Setenv("TEST_TOKEN", "abc123")
	renderer := newTestRenderer(t)
	known, err := CompileKnownProviders([]KnownSpec{
		{Name: "test-host", HostPattern: `^example\.com$`, UsernameConst: "token", TokenTemplate: `{{env "TEST_TOKEN"}}`},
	}, renderer)
	require.NoError(t, err)

	_, _, ok := known.Lookup(mustHTTPURL(t, "https://other.com/path"))
	require.False(t, ok)
}

func TestKnownProvidersRejectsBadHostPattern(t *testing.T) {
	renderer := newTestRenderer(t)
	_, err := CompileKnownProviders([]KnownSpec{
		{Name: "bad", HostPattern: "(unterminated", TokenTemplate: "x"},
	}, renderer)
	require.Error(t, err)
}

func TestNilKnownProvidersLookupIsNoop(t *testing.T) {
	var known *KnownProviders
	_, _, ok := known.Lookup(mustHTTPURL(t, "https://example.com/"))
	require.False(t, ok)
}
