package providers

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHTTPURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
