package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of request being logged.
type AuditEvent string

const (
	AuditCAInitialized    AuditEvent = "ca_initialized"
	AuditCertIssued       AuditEvent = "cert_issued"
	AuditCertUploaded     AuditEvent = "cert_uploaded"
	AuditCertDeleted      AuditEvent = "cert_deleted"
	AuditStoreCleared     AuditEvent = "store_cleared"
	AuditPrivateKeyAccess AuditEvent = "private_key_accessed"
	AuditProxyConfigured  AuditEvent = "proxy_configured"
	AuditProxyRemoved     AuditEvent = "proxy_removed"
	AuditProxyControlled  AuditEvent = "proxy_controlled"
	AuditLocalAddrSet     AuditEvent = "local_addr_set"
)

// auditLogger records every mutating request, and every private key
// download, with the caller's address.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, level slog.Level, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(r.Context(), level, "audit", append(base, attrs...)...)
}

// logEvent records a successful action on subject.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, subject string, extra ...slog.Attr) {
	al.log(event, r, slog.LevelInfo, append([]slog.Attr{slog.String("subject", subject)}, extra...)...)
}

// logFailure records a failed action on subject.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, subject string, err error) {
	al.log(event, r, slog.LevelWarn,
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
}
