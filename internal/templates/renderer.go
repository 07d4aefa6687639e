package templates

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// TokenContext is the data made available to a compiled known-URL token
// template: the host the request matched against.
type TokenContext struct {
	Host string
}

// Renderer compiles known-URL token templates using the configured
// environment policy. Inline templates inherit the policy's allowlist
// through the env/expandenv helpers.
type Renderer struct {
	env   *EnvPolicy
	funcs template.FuncMap
}

// Template represents a compiled token template ready for execution.
// Templates are safe for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

// NewRenderer constructs a renderer bound to the provided environment
// policy. When policy is nil, env/expandenv resolve to empty strings.
func NewRenderer(policy *EnvPolicy) *Renderer {
	funcs := sprig.TxtFuncMap()
	// Override environment helpers so they honor the policy rather than
	// reading from the unrestricted process environment. Remove Sprig's
	// filesystem helpers entirely: token templates have no legitimate
	// reason to read files, and readFile/readDir/glob would otherwise
	// reach arbitrary paths on the host.
	restricted := []string{
		"env",
		"expandenv",
		"readDir",
		"mustReadDir",
		"readFile",
		"mustReadFile",
		"glob",
	}
	for _, name := range restricted {
		delete(funcs, name)
	}

	r := &Renderer{env: policy, funcs: make(template.FuncMap, len(funcs)+2)}
	for name, fn := range funcs {
		r.funcs[name] = fn
	}
	r.funcs["env"] = func(key string) string {
		if r == nil || r.env == nil {
			return ""
		}
		return r.env.Environment()[key]
	}
	r.funcs["expandenv"] = func(input string) string {
		if r == nil || r.env == nil {
			return os.Expand(input, func(string) string { return "" })
		}
		env := r.env.Environment()
		return os.Expand(input, func(key string) string { return env[key] })
	}
	return r
}

// EnvPolicy exposes the renderer's environment policy primarily for
// observability and testing.
func (r *Renderer) EnvPolicy() *EnvPolicy { return r.env }

// CompileInline parses an inline token template source. Empty or
// whitespace-only sources return nil without error, so a known-URL provider
// with no configured token template simply never matches.
func (r *Renderer) CompileInline(name, source string) (*Template, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, nil
	}
	if name == "" {
		name = "inline"
	}
	tmpl, err := template.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("templates: compile %q: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Render executes the compiled template against ctx, returning the rendered
// token. Errors are propagated for callers to surface or log.
func (t *Template) Render(ctx TokenContext) (string, error) {
	if t == nil {
		return "", errors.New("templates: nil template")
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("templates: execute %q: %w", t.name, err)
	}
	return buf.String(), nil
}

// Name exposes the logical template name which callers may embed in logs.
func (t *Template) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}
