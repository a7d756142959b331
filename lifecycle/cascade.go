package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmcleod/sslinker/audit"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

// CascadeRequest names a certificate and the virtual host depending on it.
type CascadeRequest struct {
	Domain string
	// VirtualHost defaults to Domain: a certificate is assumed to be served
	// by the virtual host of the same name.
	VirtualHost string
}

// CascadeReport is the merged outcome of a cascade delete.
type CascadeReport struct {
	Domain      string `json:"domain"`
	VirtualHost string `json:"server_name"`
	// Success is true when the certificate files were deleted. Proxy
	// failures never clear it.
	Success      bool          `json:"success"`
	Removed      []string      `json:"removed"`
	ProxyRemoved bool          `json:"proxy_removed"`
	Proxy        *proxy.Result `json:"proxy,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Message      string        `json:"message"`
}

// Partial reports a successful deletion that carries errors.
func (r *CascadeReport) Partial() bool {
	return r.Success && len(r.Errors) > 0
}

// DeleteCascade deletes the certificate files for req.Domain and then, in
// every case, the virtual host config for req.VirtualHost. An error is
// returned only when the certificate deletion itself failed; proxy failures
// are listed in the report's Errors.
func (s *Service) DeleteCascade(ctx context.Context, req CascadeRequest) (*CascadeReport, error) {
	if err := storage.ValidateName(req.Domain); err != nil {
		return nil, err
	}
	if req.Domain == storage.CAName {
		return nil, fmt.Errorf("%w: use clear to remove the CA", pki.ErrReservedName)
	}
	vhost := req.VirtualHost
	if vhost == "" {
		vhost = req.Domain
	}

	unlock := s.locks.Lock(certKey(req.Domain), vhostKey(vhost))
	defer unlock()

	report := &CascadeReport{Domain: req.Domain, VirtualHost: vhost}

	del, certErr := s.store.Delete(req.Domain)
	if del != nil {
		report.Removed = del.Removed
		for _, f := range del.Failures {
			report.Errors = append(report.Errors, f.Error())
		}
	}
	if certErr == nil {
		report.Success = true
	} else if del == nil {
		report.Errors = append(report.Errors, certErr.Error())
	}

	pres, proxyErr := s.proxy.Remove(ctx, vhost)
	report.Proxy = pres
	if pres != nil {
		report.ProxyRemoved = true
	}
	if proxyErr != nil {
		report.Errors = append(report.Errors, "proxy config: "+proxyMessage(pres, proxyErr))
	}

	report.Message = cascadeMessage(report)
	outcome := audit.OutcomeOK
	switch {
	case !report.Success:
		outcome = audit.OutcomeFailed
	case report.Partial():
		outcome = audit.OutcomePartial
	}
	s.record(ctx, audit.ActionCertDeleted, req.Domain, outcome, report.Message)

	if certErr != nil {
		return report, certErr
	}
	return report, nil
}

func cascadeMessage(r *CascadeReport) string {
	var parts []string
	if r.Success {
		parts = append(parts, fmt.Sprintf("deleted %d certificate files for %s", len(r.Removed), r.Domain))
	} else {
		parts = append(parts, "certificate deletion failed for "+r.Domain)
	}
	if r.Proxy != nil && r.Proxy.Active {
		parts = append(parts, r.Proxy.Message)
	}
	parts = append(parts, r.Errors...)
	return strings.Join(parts, "; ")
}
