package templates

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvPolicyEnvironmentHonorsAllowlist(t *testing.T) {
	t.Setenv("IDXAUTH_TEST_TOKEN", "secret")
	t.Setenv("IDXAUTH_TEST_OTHER", "ignored")
	policy := NewEnvPolicy(true, []string{"IDXAUTH_TEST_TOKEN"})

	env := policy.Environment()
	require.Equal(t, "secret", env["IDXAUTH_TEST_TOKEN"])
	require.NotContains(t, env, "IDXAUTH_TEST_OTHER")
	require.Equal(t, []string{"IDXAUTH_TEST_TOKEN"}, policy.AllowedEnv())
}

func TestEnvPolicyEnvironmentEmptyWhenDisallowed(t *testing.T) {
	t.Setenv("IDXAUTH_TEST_TOKEN", "secret")
	policy := NewEnvPolicy(false, []string{"IDXAUTH_TEST_TOKEN"})
	require.Empty(t, policy.Environment())
}

func TestEnvPolicyEnvironmentEmptyWithBlankKeys(t *testing.T) {
	policy := NewEnvPolicy(true, []string{"  ", ""})
	require.Empty(t, policy.Environment())
	require.Nil(t, policy.AllowedEnv())
}

func TestEnvPolicyNilReceiverIsEmpty(t *testing.T) {
	var policy *EnvPolicy
	require.Empty(t, policy.Environment())
	require.Nil(t, policy.AllowedEnv())
}
