// Package config loads SSLinker settings from an optional YAML file, an
// optional .env file and SSLINKER_* environment variables, in increasing
// order of precedence.
package config

import (
	"time"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SSLINKER_"

// Config is the complete runtime configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" envPrefix:"PATHS_"`
	Tools   ToolsConfig   `yaml:"tools" envPrefix:"TOOLS_"`
	CA      CAConfig      `yaml:"ca" envPrefix:"CA_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// PathsConfig locates the files SSLinker owns.
type PathsConfig struct {
	// CertDir holds the CA and issued certificates; uploads go to
	// CertDir/uploads.
	CertDir string `yaml:"cert_dir" env:"CERT_DIR"`
	// ProxyConfDir holds one <server_name>.conf per virtual host.
	ProxyConfDir string `yaml:"proxy_conf_dir" env:"PROXY_CONF_DIR"`
	// LocalAddrFile defaults to DataDir/local.txt.
	LocalAddrFile string `yaml:"local_addr_file" env:"LOCAL_ADDR_FILE"`
	// TemplateFile replaces the built-in virtual host template.
	TemplateFile string `yaml:"template_file" env:"TEMPLATE_FILE"`
	// DataDir holds the journal database.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
}

// ToolsConfig names the external binaries and bounds their runtime.
type ToolsConfig struct {
	// Crypto selects the CryptoTool: "openssl" or "native".
	Crypto      string        `yaml:"crypto" env:"CRYPTO"`
	OpenSSL     string        `yaml:"openssl" env:"OPENSSL"`
	Nginx       string        `yaml:"nginx" env:"NGINX"`
	Systemctl   string        `yaml:"systemctl" env:"SYSTEMCTL"`
	Service     string        `yaml:"service" env:"SERVICE"`
	ServiceName string        `yaml:"service_name" env:"SERVICE_NAME"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CAConfig holds the certificate authority parameters.
type CAConfig struct {
	CommonName   string `yaml:"common_name" env:"COMMON_NAME"`
	KeyBits      int    `yaml:"key_bits" env:"KEY_BITS"`
	LeafKeyBits  int    `yaml:"leaf_key_bits" env:"LEAF_KEY_BITS"`
	ValidityDays int    `yaml:"validity_days" env:"VALIDITY_DAYS"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Listen          string        `yaml:"listen" env:"LISTEN"`
	TLSCert         string        `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey          string        `yaml:"tls_key" env:"TLS_KEY"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is text or json.
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Path      string `yaml:"path" env:"PATH"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TLSEnabled reports whether the API server should serve HTTPS.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}
