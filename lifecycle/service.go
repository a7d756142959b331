// Package lifecycle coordinates the certificate store, the certificate
// authority and the reverse-proxy configuration so that a certificate and
// the virtual host serving it are created and retracted as one unit.
//
// Every mutation is serialised per domain or virtual host name; ClearAll
// excludes all other mutations while it runs. Reads are not synchronised and
// tolerate files vanishing underneath them.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmcleod/sslinker/audit"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

// Recorder counts lifecycle mutations. *metrics.Collector implements it.
type Recorder interface {
	RecordLifecycle(action audit.Action, outcome audit.Outcome)
}

// Service is the single entry point for lifecycle mutations.
type Service struct {
	store    *storage.Store
	ca       *pki.Authority
	engine   *proxy.Engine
	proxy    *proxy.Controller
	addr     *storage.AddressFile
	journal  audit.Store
	recorder Recorder
	logger   *slog.Logger

	locks *keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the virtual host template engine. Defaults to
// proxy.DefaultEngine().
func WithEngine(e *proxy.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithJournal sets the store that records every mutation.
func WithJournal(j audit.Store) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With("component", "lifecycle")
	}
}

// New returns a Service over the given components.
func New(store *storage.Store, ca *pki.Authority, ctrl *proxy.Controller, addr *storage.AddressFile, opts ...Option) *Service {
	s := &Service{
		store:   store,
		ca:      ca,
		engine:  proxy.DefaultEngine(),
		proxy:   ctrl,
		addr:    addr,
		journal: audit.Discard,
		logger:  slog.Default().With("component", "lifecycle"),
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Certificate authority
// ---------------------------------------------------------------------------

// Bootstrap creates the CA if it does not exist. It runs exclusively so no
// issuance can observe a half-written CA.
func (s *Service) Bootstrap(ctx context.Context) (*pki.BootstrapResult, error) {
	unlock := s.locks.Exclusive()
	defer unlock()

	res, err := s.ca.Bootstrap(ctx)
	switch {
	case err != nil:
		s.record(ctx, audit.ActionCAInitialized, storage.CAName, audit.OutcomeFailed, err.Error())
	case !res.Existed:
		s.record(ctx, audit.ActionCAInitialized, storage.CAName, audit.OutcomeOK, res.Message)
	}
	return res, err
}

// CAPresent reports whether the CA key and certificate both exist.
func (s *Service) CAPresent() bool {
	return s.store.CAPresent()
}

// ---------------------------------------------------------------------------
// Certificates
// ---------------------------------------------------------------------------

// IssueRequest asks for a leaf certificate and, optionally, a virtual host
// serving it.
type IssueRequest struct {
	Domain string
	// IPs is a comma-separated list of IP SAN entries.
	IPs string
	// Proxy, when set, configures a virtual host for the new certificate.
	Proxy *ProxyRequest
}

// ProxyRequest describes a virtual host created together with a certificate.
type ProxyRequest struct {
	// ServerName defaults to the certificate domain.
	ServerName string
	ProxyPass  string
}

// IssueResult is the outcome of Issue.
type IssueResult struct {
	Leaf    *pki.Leaf     `json:"certificate"`
	Proxy   *proxy.Result `json:"proxy,omitempty"`
	Message string        `json:"message"`
}

// Issue issues a leaf certificate. When req.Proxy is set the virtual host is
// configured afterwards; a proxy failure is returned with the result, whose
// Leaf is still valid.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if !s.store.CAPresent() {
		s.record(ctx, audit.ActionCertIssued, req.Domain, audit.OutcomeFailed, pki.ErrCAMissing.Error())
		return nil, pki.ErrCAMissing
	}
	keys := []string{certKey(req.Domain)}
	var params proxy.Params
	if req.Proxy != nil {
		params = proxy.Params{
			ServerName: req.Proxy.ServerName,
			CertDomain: req.Domain,
			ProxyPass:  req.Proxy.ProxyPass,
		}
		if params.ServerName == "" {
			params.ServerName = req.Domain
		}
		// Checked up front so a bad proxy request does not leave a
		// certificate behind.
		if err := params.Validate(); err != nil {
			return nil, err
		}
		keys = append(keys, vhostKey(params.ServerName))
	}
	unlock := s.locks.Lock(keys...)
	defer unlock()

	leaf, err := s.ca.IssueLeaf(ctx, req.Domain, req.IPs)
	if err != nil {
		s.record(ctx, audit.ActionCertIssued, req.Domain, audit.OutcomeFailed, err.Error())
		return nil, err
	}
	res := &IssueResult{Leaf: leaf, Message: "certificate issued for " + req.Domain}
	s.record(ctx, audit.ActionCertIssued, req.Domain, audit.OutcomeOK, res.Message)

	if req.Proxy == nil {
		return res, nil
	}
	pres, err := s.configure(ctx, params)
	res.Proxy = pres
	if err != nil {
		res.Message += "; proxy: " + proxyMessage(pres, err)
		return res, err
	}
	res.Message += "; " + pres.Message
	return res, nil
}

// Upload stores a user-supplied certificate and key.
func (s *Service) Upload(ctx context.Context, req storage.UploadRequest) (*storage.Certificate, error) {
	name := req.BaseName()
	unlock := s.locks.Lock(certKey(name))
	defer unlock()

	cert, err := s.store.Upload(req)
	if err != nil {
		s.record(ctx, audit.ActionCertUploaded, name, audit.OutcomeFailed, err.Error())
		return nil, err
	}
	s.record(ctx, audit.ActionCertUploaded, cert.Domain, audit.OutcomeOK, cert.CertPath)
	return cert, nil
}

// Certificates lists every stored certificate, CA first.
func (s *Service) Certificates() ([]storage.Certificate, error) {
	return s.store.List()
}

// Download returns the certificate or key stored for domain.
func (s *Service) Download(domain string, kind storage.FileKind) (*storage.File, error) {
	return s.store.Download(domain, kind)
}

// ClearAll removes every certificate in the root namespace, including the
// CA. Uploaded certificates and proxy configs are kept.
func (s *Service) ClearAll(ctx context.Context) (*storage.ClearReport, error) {
	unlock := s.locks.Exclusive()
	defer unlock()

	report, err := s.store.ClearAll()
	switch {
	case errors.Is(err, storage.ErrPartial):
		s.record(ctx, audit.ActionStoreCleared, s.store.Root(), audit.OutcomePartial, err.Error())
	case err != nil:
		s.record(ctx, audit.ActionStoreCleared, s.store.Root(), audit.OutcomeFailed, err.Error())
	default:
		s.record(ctx, audit.ActionStoreCleared, s.store.Root(), audit.OutcomeOK,
			fmt.Sprintf("removed %d files", len(report.Removed)))
	}
	return report, err
}

// ---------------------------------------------------------------------------
// Proxy configuration
// ---------------------------------------------------------------------------

// Configure renders a virtual host for p and writes it. A reload failure
// returns the result together with an error matching proxy.ErrReloadFailed.
func (s *Service) Configure(ctx context.Context, p proxy.Params) (*proxy.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(vhostKey(p.ServerName))
	defer unlock()
	return s.configure(ctx, p)
}

func (s *Service) configure(ctx context.Context, p proxy.Params) (*proxy.Result, error) {
	res, err := s.proxy.WriteConfig(ctx, p.ServerName, s.engine.Render(p))
	s.record(ctx, audit.ActionProxyConfigured, p.ServerName, outcomeOf(res, err), proxyMessage(res, err))
	return res, err
}

// RemoveConfig deletes the virtual host named name.
func (s *Service) RemoveConfig(ctx context.Context, name string) (*proxy.Result, error) {
	unlock := s.locks.Lock(vhostKey(name))
	defer unlock()

	res, err := s.proxy.Remove(ctx, name)
	s.record(ctx, audit.ActionProxyRemoved, name, outcomeOf(res, err), proxyMessage(res, err))
	return res, err
}

// VirtualHosts lists the configured virtual hosts.
func (s *Service) VirtualHosts() ([]proxy.VirtualHost, error) {
	return s.proxy.List()
}

// ProxyStatus reports whether the proxy is running.
func (s *Service) ProxyStatus(ctx context.Context) proxy.State {
	return s.proxy.Status(ctx)
}

// ReloadProxy asks the proxy to reload its configuration and returns its
// output.
func (s *Service) ReloadProxy(ctx context.Context) (string, error) {
	return s.control(ctx, "reload", s.proxy.Reload)
}

// StartProxy launches the proxy.
func (s *Service) StartProxy(ctx context.Context) (string, error) {
	return s.control(ctx, "start", s.proxy.Start)
}

// StopProxy stops the proxy.
func (s *Service) StopProxy(ctx context.Context) (string, error) {
	return s.control(ctx, "stop", s.proxy.Stop)
}

func (s *Service) control(ctx context.Context, action string, fn func(context.Context) (string, error)) (string, error) {
	unlock := s.locks.Lock(proxyKey)
	defer unlock()

	out, err := fn(ctx)
	if err != nil {
		s.record(ctx, audit.ActionProxyControlled, action, audit.OutcomeFailed, err.Error())
		return out, err
	}
	s.record(ctx, audit.ActionProxyControlled, action, audit.OutcomeOK, out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Local address
// ---------------------------------------------------------------------------

// LocalAddress returns the saved local address, or "".
func (s *Service) LocalAddress() (string, error) {
	return s.addr.Read()
}

// SetLocalAddress saves addr after trimming it.
func (s *Service) SetLocalAddress(ctx context.Context, addr string) (string, error) {
	unlock := s.locks.Lock(localAddrKey)
	defer unlock()

	stored, err := s.addr.Write(addr)
	if err != nil {
		s.record(ctx, audit.ActionLocalAddrSet, addr, audit.OutcomeFailed, err.Error())
		return "", err
	}
	s.record(ctx, audit.ActionLocalAddrSet, stored, audit.OutcomeOK, "")
	return stored, nil
}

// Hosts returns hosts-file lines mapping every virtual host to the local
// address.
func (s *Service) Hosts() ([]string, error) {
	addr, err := s.addr.Read()
	if err != nil {
		return nil, err
	}
	hosts, err := s.proxy.List()
	if err != nil {
		return nil, err
	}
	return proxy.HostsLines(addr, hosts), nil
}

// Events returns up to limit journal entries, newest first.
func (s *Service) Events(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.journal.List(ctx, limit)
}

func (s *Service) record(ctx context.Context, action audit.Action, subject string, outcome audit.Outcome, msg string) {
	if s.recorder != nil {
		s.recorder.RecordLifecycle(action, outcome)
	}
	ev := audit.NewEvent(action, subject, outcome, msg)
	if err := s.journal.Append(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("failed to append journal event", "action", action, "subject", subject, "error", err)
	}
}

// outcomeOf classifies a proxy mutation: a reload failure after the file
// change is partial.
func outcomeOf(res *proxy.Result, err error) audit.Outcome {
	switch {
	case err == nil:
		return audit.OutcomeOK
	case res != nil && errors.Is(err, proxy.ErrReloadFailed):
		return audit.OutcomePartial
	default:
		return audit.OutcomeFailed
	}
}

func proxyMessage(res *proxy.Result, err error) string {
	if res != nil && res.Message != "" {
		return res.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
