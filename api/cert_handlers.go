package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/sslinker/lifecycle"
	"github.com/jmcleod/sslinker/storage"
)

// InitCA handles POST /cert/ca.
func (a *API) InitCA(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Bootstrap(r.Context())
	if err != nil {
		a.audit.logFailure(AuditCAInitialized, r, storage.CAName, err)
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if !res.Existed {
		status = http.StatusCreated
		a.audit.logEvent(AuditCAInitialized, r, storage.CAName, slog.String("cert_path", res.CertPath))
	}
	writeJSON(w, status, CAResponse{
		Success:  true,
		CertPath: res.CertPath,
		KeyPath:  res.KeyPath,
		Existed:  res.Existed,
		Message:  res.Message,
	})
}

// IssueCert handles POST /cert/domain?domain=&ip=. When proxy_pass is given
// a virtual host is configured for the new certificate as well; server_name
// defaults to the domain.
func (a *API) IssueCert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := lifecycle.IssueRequest{
		Domain: strings.TrimSpace(q.Get("domain")),
		IPs:    q.Get("ip"),
	}
	if pp := strings.TrimSpace(q.Get("proxy_pass")); pp != "" {
		req.Proxy = &lifecycle.ProxyRequest{
			ServerName: strings.TrimSpace(q.Get("server_name")),
			ProxyPass:  pp,
		}
	}

	res, err := a.svc.Issue(r.Context(), req)
	if res == nil {
		a.audit.logFailure(AuditCertIssued, r, req.Domain, err)
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditCertIssued, r, req.Domain, slog.Any("sans", res.Leaf.SANStrings()))

	if err != nil {
		// The certificate stands; only the virtual host failed.
		a.audit.logFailure(AuditProxyConfigured, r, req.Domain, err)
		writeJSON(w, statusFor(err), newIssueResponse(res, err))
		return
	}
	if res.Proxy != nil {
		a.audit.logEvent(AuditProxyConfigured, r, req.Domain, slog.String("config_path", res.Proxy.Path))
	}
	writeJSON(w, http.StatusCreated, newIssueResponse(res, nil))
}

// ListCerts handles GET /cert/list.
func (a *API) ListCerts(w http.ResponseWriter, r *http.Request) {
	certs, err := a.svc.Certificates()
	if err != nil {
		mapError(w, err)
		return
	}
	if certs == nil {
		certs = []storage.Certificate{}
	}
	writeJSON(w, http.StatusOK, ListCertsResponse{Certs: certs})
}

// DownloadCert handles GET /cert/download?domain=&type=. type=key selects
// the private key; anything else selects the certificate.
func (a *API) DownloadCert(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	kind := storage.FileCert
	if r.URL.Query().Get("type") == "key" {
		kind = storage.FileKey
	}

	f, err := a.svc.Download(domain, kind)
	if err != nil {
		mapError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	if kind == storage.FileCert {
		w.Header().Set("Content-Type", "application/x-x509-ca-cert")
		w.WriteHeader(http.StatusOK)
		w.Write(f.Data)
		return
	}

	// The key is moved into locked memory, wiping the read buffer, and
	// destroyed once written out.
	buf := memguard.NewBufferFromBytes(f.Data)
	defer buf.Destroy()
	a.audit.logEvent(AuditPrivateKeyAccess, r, domain, slog.String("path", f.Path))

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// DeleteCert handles DELETE /cert/delete?domain=[&server_name=]. The
// virtual host named server_name, or the domain, is removed with the
// certificate.
func (a *API) DeleteCert(w http.ResponseWriter, r *http.Request) {
	req := lifecycle.CascadeRequest{
		Domain:      r.URL.Query().Get("domain"),
		VirtualHost: strings.TrimSpace(r.URL.Query().Get("server_name")),
	}
	report, err := a.svc.DeleteCascade(r.Context(), req)
	if report == nil {
		a.audit.logFailure(AuditCertDeleted, r, req.Domain, err)
		mapError(w, err)
		return
	}
	if err != nil {
		a.audit.logFailure(AuditCertDeleted, r, req.Domain, err)
		writeJSON(w, statusFor(err), report)
		return
	}

	a.audit.logEvent(AuditCertDeleted, r, req.Domain,
		slog.Int("removed", len(report.Removed)),
		slog.Bool("proxy_removed", report.ProxyRemoved),
		slog.Bool("partial", report.Partial()))
	writeJSON(w, http.StatusOK, report)
}

// ClearCerts handles DELETE /cert/clear. Per-file failures yield 207 with
// the files that were removed.
func (a *API) ClearCerts(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.ClearAll(r.Context())
	var partial *storage.PartialFailure
	switch {
	case errors.As(err, &partial):
		a.audit.logFailure(AuditStoreCleared, r, "*", err)
		writeJSON(w, http.StatusMultiStatus, ClearResponse{
			Success: true,
			Removed: report.Removed,
			Errors:  partial.Messages(),
			Message: fmt.Sprintf("removed %d files, %d failed", len(report.Removed), len(partial.Failures)),
		})
		return
	case err != nil:
		a.audit.logFailure(AuditStoreCleared, r, "*", err)
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditStoreCleared, r, "*", slog.Int("removed", len(report.Removed)))
	removed := report.Removed
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, ClearResponse{
		Success: true,
		Removed: removed,
		Message: fmt.Sprintf("removed %d files", len(removed)),
	})
}

// UploadCert handles POST /cert/upload with multipart fields "file" (the
// certificate), "key" and an optional "name".
func (a *API) UploadCert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	certName, cert, err := readFormFile(r, "file", a.maxUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyName, key, err := readFormFile(r, "key", a.maxUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := storage.UploadRequest{
		CertFilename: certName,
		Cert:         cert,
		KeyFilename:  keyName,
		Key:          key,
		Name:         strings.TrimSpace(r.FormValue("name")),
	}
	c, err := a.svc.Upload(r.Context(), req)
	if err != nil {
		a.audit.logFailure(AuditCertUploaded, r, req.BaseName(), err)
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCertUploaded, r, c.Domain, slog.String("cert_path", c.CertPath))
	writeJSON(w, http.StatusCreated, UploadResponse{
		Success:     true,
		Certificate: c,
		Message:     "uploaded " + c.Domain,
	})
}

func readFormFile(r *http.Request, field string, limit int64) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, fmt.Errorf("%s is required", field)
		}
		return "", nil, fmt.Errorf("reading %s: %w", field, err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return header.Filename, data, nil
}
