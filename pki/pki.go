// Package pki runs the private certificate authority. The CA key pair lives
// in the storage root under the reserved name storage.CAName; leaf
// certificates are issued next to it. Key generation and signing are
// delegated to a CryptoTool.
package pki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmcleod/sslinker/storage"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrCAMissing is returned when a leaf is requested before the CA
	// key and certificate both exist.
	ErrCAMissing = errors.New("CA certificate has not been generated")

	// ErrReservedName is returned when a leaf is requested under the CA's
	// reserved base name.
	ErrReservedName = errors.New("name is reserved for the CA")

	// ErrInvalidIP is returned when an entry of the IP list does not parse.
	ErrInvalidIP = errors.New("invalid IP address")
)

// Settings are the fixed parameters of the authority.
type Settings struct {
	CommonName   string
	KeyBits      int
	LeafKeyBits  int
	ValidityDays int
}

// DefaultSettings returns a 4096-bit CA and 2048-bit leaves, all valid for
// twenty years.
func DefaultSettings() Settings {
	return Settings{
		CommonName:   "SSLinker CA",
		KeyBits:      4096,
		LeafKeyBits:  2048,
		ValidityDays: 7300,
	}
}

// Authority issues certificates from the CA held in a storage.Store.
type Authority struct {
	store    *storage.Store
	tool     CryptoTool
	settings Settings
	logger   *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithSettings overrides the default settings. Zero fields keep their default.
func WithSettings(s Settings) Option {
	return func(a *Authority) {
		d := DefaultSettings()
		if s.CommonName == "" {
			s.CommonName = d.CommonName
		}
		if s.KeyBits == 0 {
			s.KeyBits = d.KeyBits
		}
		if s.LeafKeyBits == 0 {
			s.LeafKeyBits = d.LeafKeyBits
		}
		if s.ValidityDays == 0 {
			s.ValidityDays = d.ValidityDays
		}
		a.settings = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger.With("component", "pki")
	}
}

// New returns an Authority for store using tool.
func New(store *storage.Store, tool CryptoTool, opts ...Option) *Authority {
	a := &Authority{
		store:    store,
		tool:     tool,
		settings: DefaultSettings(),
		logger:   slog.Default().With("component", "pki"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Settings returns the effective settings.
func (a *Authority) Settings() Settings { return a.settings }

// BootstrapResult describes the CA after Bootstrap.
type BootstrapResult struct {
	KeyPath  string `json:"ca_key_path"`
	CertPath string `json:"ca_cert_path"`
	// Existed is true when the CA was already present and nothing changed.
	Existed bool   `json:"existed"`
	Message string `json:"message"`
}

// Bootstrap creates the CA key and self-signed certificate. It is a no-op
// reporting Existed when both files are present. On failure the half-written
// pair is removed so the CA continues to read as absent.
func (a *Authority) Bootstrap(ctx context.Context) (*BootstrapResult, error) {
	paths := a.store.CAPaths()
	res := &BootstrapResult{KeyPath: paths.Key, CertPath: paths.Cert}

	if a.store.CAPresent() {
		res.Existed = true
		res.Message = "CA certificate already exists"
		return res, nil
	}
	if err := a.store.Init(); err != nil {
		return nil, err
	}

	if err := a.tool.GenerateKey(ctx, paths.Key, a.settings.KeyBits); err != nil {
		a.discard(paths.Key)
		return nil, fmt.Errorf("generating CA key: %w", err)
	}
	if err := a.tool.SelfSign(ctx, paths.Key, paths.Cert, a.settings.CommonName, a.settings.ValidityDays); err != nil {
		a.discard(paths.Key, paths.Cert)
		return nil, fmt.Errorf("creating CA certificate: %w", err)
	}

	a.logger.Info("CA generated", "cert", paths.Cert, "subject", a.settings.CommonName)
	res.Message = "CA certificate generated"
	return res, nil
}

// Leaf describes an issued leaf certificate.
type Leaf struct {
	Domain   string `json:"domain"`
	KeyPath  string `json:"key_path"`
	CertPath string `json:"cert_path"`
	SANs     []SAN  `json:"sans"`
}

// SANStrings renders the SAN list as "DNS:…", "IP:…" entries.
func (l *Leaf) SANStrings() []string {
	out := make([]string, len(l.SANs))
	for i, s := range l.SANs {
		out[i] = s.String()
	}
	return out
}

// IssueError reports a failed issuance and the files it left on disk, which
// are not cleaned up automatically.
type IssueError struct {
	Domain    string
	Artifacts []string
	Err       error
}

func (e *IssueError) Error() string {
	msg := fmt.Sprintf("issuing certificate for %s: %v", e.Domain, e.Err)
	if len(e.Artifacts) > 0 {
		msg += " (left on disk: " + strings.Join(e.Artifacts, ", ") + ")"
	}
	return msg
}

func (e *IssueError) Unwrap() error { return e.Err }

// IssueLeaf issues a certificate for domain signed by the CA. ipList is an
// optional comma-separated list of IP addresses added as SAN entries after
// the domain. The CA must exist; otherwise ErrCAMissing is returned before
// any other check and without invoking the crypto tool.
func (a *Authority) IssueLeaf(ctx context.Context, domain, ipList string) (*Leaf, error) {
	if !a.store.CAPresent() {
		return nil, ErrCAMissing
	}
	if err := storage.ValidateName(domain); err != nil {
		return nil, err
	}
	if domain == storage.CAName {
		return nil, fmt.Errorf("%w: %s", ErrReservedName, domain)
	}
	ips, err := ParseIPList(ipList)
	if err != nil {
		return nil, err
	}

	ca := a.store.CAPaths()
	paths := a.store.IssuedPaths(domain)
	leaf := &Leaf{
		Domain:   domain,
		KeyPath:  paths.Key,
		CertPath: paths.Cert,
		SANs:     BuildSANs(domain, ips),
	}

	fail := func(step string, err error) error {
		issueErr := &IssueError{
			Domain:    domain,
			Artifacts: storage.Existing(paths.Key, paths.Request, paths.Cert),
			Err:       fmt.Errorf("%s: %w", step, err),
		}
		a.logger.Error("certificate issuance failed", "domain", domain, "step", step, "error", err, "artifacts", issueErr.Artifacts)
		return issueErr
	}

	if err := a.tool.GenerateKey(ctx, paths.Key, a.settings.LeafKeyBits); err != nil {
		return nil, fail("generating key", err)
	}
	err = a.tool.SignRequest(ctx, SignRequest{
		KeyPath:     paths.Key,
		RequestPath: paths.Request,
		CertPath:    paths.Cert,
		CAKeyPath:   ca.Key,
		CACertPath:  ca.Cert,
		CommonName:  domain,
		Days:        a.settings.ValidityDays,
		SANs:        leaf.SANs,
	})
	if err != nil {
		return nil, fail("signing certificate", err)
	}

	if err := os.Remove(paths.Request); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("failed to remove signing request", "path", paths.Request, "error", err)
	}
	a.logger.Info("certificate issued", "domain", domain, "sans", leaf.SANStrings())
	return leaf, nil
}

// discard removes half-written CA material.
func (a *Authority) discard(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove partial CA file", "path", p, "error", err)
		}
	}
}
