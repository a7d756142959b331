package config

import (
	"path/filepath"
	"time"
)

// Default values.
const (
	DefaultCertDir         = "/certs"
	DefaultProxyConfDir    = "/etc/nginx/conf.d"
	DefaultDataDir         = "/var/lib/sslinker"
	DefaultCrypto          = CryptoOpenSSL
	DefaultToolTimeout     = 60 * time.Second
	DefaultListen          = ":8000"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 2 * time.Minute
	DefaultIdleTimeout     = 2 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUploadBytes  = 10 << 20
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNS       = "sslinker"
)

// CryptoTool choices.
const (
	CryptoOpenSSL = "openssl"
	CryptoNative  = "native"
)

// Default returns a Config with every field at its default. Metrics are
// enabled by default; a file or environment value can turn them off.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	p := &cfg.Paths
	if p.CertDir == "" {
		p.CertDir = DefaultCertDir
	}
	if p.ProxyConfDir == "" {
		p.ProxyConfDir = DefaultProxyConfDir
	}
	if p.DataDir == "" {
		p.DataDir = DefaultDataDir
	}
	if p.LocalAddrFile == "" {
		p.LocalAddrFile = filepath.Join(p.DataDir, "local.txt")
	}

	t := &cfg.Tools
	if t.Crypto == "" {
		t.Crypto = DefaultCrypto
	}
	if t.OpenSSL == "" {
		t.OpenSSL = "openssl"
	}
	if t.Nginx == "" {
		t.Nginx = "nginx"
	}
	if t.Systemctl == "" {
		t.Systemctl = "systemctl"
	}
	if t.Service == "" {
		t.Service = "service"
	}
	if t.ServiceName == "" {
		t.ServiceName = "nginx"
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultToolTimeout
	}

	ca := &cfg.CA
	if ca.CommonName == "" {
		ca.CommonName = "SSLinker CA"
	}
	if ca.KeyBits == 0 {
		ca.KeyBits = 4096
	}
	if ca.LeafKeyBits == 0 {
		ca.LeafKeyBits = 2048
	}
	if ca.ValidityDays == 0 {
		ca.ValidityDays = 7300
	}

	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNS
	}
}
