package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrInvalid matches every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Validate checks cfg and returns every problem found.
func Validate(cfg *Config) error {
	var errs error
	add := func(field, format string, args ...any) {
		errs = multierr.Append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Paths.CertDir == "" {
		add("paths.cert_dir", "must not be empty")
	}
	if cfg.Paths.ProxyConfDir == "" {
		add("paths.proxy_conf_dir", "must not be empty")
	}
	if cfg.Paths.DataDir == "" {
		add("paths.data_dir", "must not be empty")
	}

	switch cfg.Tools.Crypto {
	case CryptoOpenSSL, CryptoNative:
	default:
		add("tools.crypto", "must be %q or %q, got %q", CryptoOpenSSL, CryptoNative, cfg.Tools.Crypto)
	}
	if cfg.Tools.Timeout < 0 {
		add("tools.timeout", "must not be negative")
	}

	if cfg.CA.KeyBits < 2048 {
		add("ca.key_bits", "must be at least 2048, got %d", cfg.CA.KeyBits)
	}
	if cfg.CA.LeafKeyBits < 2048 {
		add("ca.leaf_key_bits", "must be at least 2048, got %d", cfg.CA.LeafKeyBits)
	}
	if cfg.CA.ValidityDays <= 0 {
		add("ca.validity_days", "must be positive")
	}
	if strings.ContainsAny(cfg.CA.CommonName, "/=") {
		add("ca.common_name", "must not contain '/' or '='")
	}

	if cfg.Server.Listen == "" {
		add("server.listen", "must not be empty")
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		add("server.tls_cert", "tls_cert and tls_key must be set together")
	}
	if cfg.Server.MaxUploadBytes < 0 {
		add("server.max_upload_bytes", "must not be negative")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", cfg.Log.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with '/'")
	}
	return errs
}
