package templates

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileInlineEmptySourceIsNoop(t *testing.T) {
	r := NewRenderer(nil)
	tmpl, err := r.CompileInline("empty", "   ")
	require.NoError(t, err)
	require.Nil(t, tmpl)
}

func TestCompileInlineRendersWithSprigFuncs(t *testing.T) {
	r := NewRenderer(nil)
	tmpl, err := r.CompileInline("greeting", "Bearer {{ .Host | upper }}")
	require.NoError(t, err)
	require.NotNil(t, tmpl)

	out, err := tmpl.Render(TokenContext{Host: "example.com"})
	require.NoError(t, err)
	require.Equal(t, "Bearer EXAMPLE.COM", out)
}

func TestCompileInlineRejectsSyntaxErrors(t *testing.T) {
	r := NewRenderer(nil)
	_, err := r.CompileInline("broken", "{{ .Host")
	require.Error(t, err)
}

func TestRenderEnvHelperUsesAllowlist(t *testing.T) {
	t.Setenv("IDXAUTH_TEST_TOKEN", "s3cr3t")
	policy := NewEnvPolicy(true, []string{"IDXAUTH_TEST_TOKEN"})
	r := NewRenderer(policy)

	tmpl, err := r.CompileInline("env", `{{ env "IDXAUTH_TEST_TOKEN" }}`)
	require.NoError(t, err)
	out, err := tmpl.Render(TokenContext{})
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", out)
}

func TestRenderEnvHelperIgnoresDisallowedKeys(t *testing.T) {
	t.Setenv("IDXAUTH_TEST_OTHER", "leaked")
	policy := NewEnvPolicy(true, []string{"IDXAUTH_TEST_TOKEN"})
	r := NewRenderer(policy)

	tmpl, err := r.CompileInline("env", `{{ env "IDXAUTH_TEST_OTHER" }}`)
	require.NoError(t, err)
	out, err := tmpl.Render(TokenContext{})
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestRenderEnvHelperWithNilPolicyIsEmpty(t *testing.T) {
	r := NewRenderer(nil)
	tmpl, err := r.CompileInline("env", `[{{ env "ANYTHING" }}]`)
	require.NoError(t, err)
	out, err := tmpl.Render(TokenContext{})
	require.NoError(t, err)
	require.Equal(t, "[]", out)
}

func TestRenderExpandEnvHonorsAllowlist(t *testing.T) {
	t.Setenv("IDXAUTH_TEST_TOKEN", "s3cr3t")
	policy := NewEnvPolicy(true, []string{"IDXAUTH_TEST_TOKEN"})
	r := NewRenderer(policy)

	tmpl, err := r.CompileInline("expand", `{{ expandenv "prefix-$IDXAUTH_TEST_TOKEN" }}`)
	require.NoError(t, err)
	out, err := tmpl.Render(TokenContext{})
	require.NoError(t, err)
	require.Equal(t, "prefix-s3cr3t", out)
}

func TestTemplateNameAndNilSafety(t *testing.T) {
	r := NewRenderer(nil)
	tmpl, err := r.CompileInline("named", "ok")
	require.NoError(t, err)
	require.Equal(t, "named", tmpl.Name())

	var nilTmpl *Template
	require.Equal(t, "", nilTmpl.Name())
	_, err = nilTmpl.Render(TokenContext{})
	require.Error(t, err)
}
