package proxy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Template tokens. Each must appear at least once in a template.
const (
	TokenServerName = "{{ server_name }}"
	TokenCertDomain = "{{ cert_domain }}"
	TokenProxyPass  = "{{ proxy_pass }}"
)

// DefaultTemplateCertDir is where the built-in template expects
// <cert_domain>.crt and <cert_domain>.key, as seen by nginx.
const DefaultTemplateCertDir = "/certs"

// ErrInvalidTemplate is returned when a template is missing a token.
var ErrInvalidTemplate = errors.New("invalid virtual host template")

//go:embed nginx_https_server.conf.tmpl
var defaultTemplate string

// Params are the values substituted into a template.
type Params struct {
	ServerName string `json:"server_name"`
	CertDomain string `json:"cert_domain"`
	ProxyPass  string `json:"proxy_pass"`
}

// Validate reports missing parameters.
func (p Params) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ServerName) == "" {
		missing = append(missing, "server_name")
	}
	if strings.TrimSpace(p.CertDomain) == "" {
		missing = append(missing, "cert_domain")
	}
	if strings.TrimSpace(p.ProxyPass) == "" {
		missing = append(missing, "proxy_pass")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidParams, strings.Join(missing, ", "))
	}
	return nil
}

// Engine renders virtual host configs from a fixed template. It is immutable
// after construction and safe for concurrent use.
type Engine struct {
	text string
}

// NewEngine returns an Engine for text, which must contain all three tokens.
func NewEngine(text string) (*Engine, error) {
	var missing []string
	for _, tok := range []string{TokenServerName, TokenCertDomain, TokenProxyPass} {
		if !strings.Contains(text, tok) {
			missing = append(missing, tok)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTemplate, strings.Join(missing, ", "))
	}
	return &Engine{text: text}, nil
}

// LoadEngine reads a template from path.
func LoadEngine(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return NewEngine(string(data))
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// DefaultEngine returns the Engine for the built-in HTTPS server template.
func DefaultEngine() *Engine {
	defaultOnce.Do(func() {
		e, err := NewEngine(defaultTemplate)
		if err != nil {
			panic(err)
		}
		defaultEngine = e
	})
	return defaultEngine
}

// Text returns the raw template.
func (e *Engine) Text() string { return e.text }

// Render substitutes every token occurrence with its value. Substitution is
// a single literal pass: values containing token text are not expanded again.
func (e *Engine) Render(p Params) string {
	r := strings.NewReplacer(
		TokenServerName, p.ServerName,
		TokenCertDomain, p.CertDomain,
		TokenProxyPass, p.ProxyPass,
	)
	return r.Replace(e.text)
}
