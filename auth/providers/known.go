package providers

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/l0p7/idxauth-fetch/internal/templates"
)

// KnownSpec is the declarative form of a known-URL provider rule: a host
// pattern plus a templated token. This generalizes the single hardcoded
// "hosted provider" hook the specification calls out (e.g. a HuggingFace-
// style rule) into a configurable list, in the style of the donor
// codebase's declarative rule directives.
type KnownSpec struct {
	Name          string
	HostPattern   string // regular expression matched against the request host
	UsernameConst string // literal username to pair with the rendered token, e.g. "token"
	TokenTemplate string // rendered with {{.Host}} available; typically `{{env "HF_TOKEN"}}`
}

type knownRule struct {
	name     string
	host     *regexp.Regexp
	username string
	token    *templates.Template
}

// KnownProviders is a pure, synchronous function from URL to optional
// credentials: the first compiled rule whose host pattern matches wins, and
// its token template is rendered. A rendered-empty token (e.g. because the
// required environment variable is absent) is treated as no match, so
// absent configuration never yields empty-but-present credentials.
type KnownProviders struct {
	rules []knownRule
}

// CompileKnownProviders compiles specs against renderer, which supplies the
// sandboxed env/expandenv template functions. renderer may be nil only if
// specs is empty.
func CompileKnownProviders(specs []KnownSpec, renderer *templates.Renderer) (*KnownProviders, error) {
	rules := make([]knownRule, 0, len(specs))
	for _, spec := range specs {
		host, err := regexp.Compile(spec.HostPattern)
		if err != nil {
			return nil, fmt.Errorf("providers: known provider %q host pattern: %w", spec.Name, err)
		}
		tmpl, err := renderer.CompileInline(spec.Name, spec.TokenTemplate)
		if err != nil {
			return nil, fmt.Errorf("providers: known provider %q token template: %w", spec.Name, err)
		}
		rules = append(rules, knownRule{name: spec.Name, host: host, username: spec.UsernameConst, token: tmpl})
	}
	return &KnownProviders{rules: rules}, nil
}

// Lookup evaluates the compiled rules against u, synchronously, returning
// the first match with a non-empty rendered token.
func (k *KnownProviders) Lookup(u *url.URL) (username, password string, ok bool) {
	if k == nil {
		return "", "", false
	}
	for _, rule := range k.rules {
		if !rule.host.MatchString(u.Hostname()) {
			continue
		}
		if rule.token == nil {
			continue
		}
		rendered, err := rule.token.Render(templates.TokenContext{Host: u.Hostname()})
		if err != nil || rendered == "" {
			continue
		}
		return rule.username, rendered, true
	}
	return "", "", false
}
