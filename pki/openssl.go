package pki

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jmcleod/sslinker/internal/toolexec"
)

// OpenSSL implements CryptoTool by invoking the openssl command line.
type OpenSSL struct {
	runner  toolexec.Runner
	bin     string
	tempDir string
}

var _ CryptoTool = (*OpenSSL)(nil)

// OpenSSLOption configures an OpenSSL tool.
type OpenSSLOption func(*OpenSSL)

// WithBinary sets the openssl executable. Defaults to "openssl" on PATH.
func WithBinary(bin string) OpenSSLOption {
	return func(o *OpenSSL) {
		if bin != "" {
			o.bin = bin
		}
	}
}

// WithTempDir sets where the per-request extension config is written.
// Defaults to os.TempDir().
func WithTempDir(dir string) OpenSSLOption {
	return func(o *OpenSSL) {
		o.tempDir = dir
	}
}

// NewOpenSSL returns an OpenSSL tool running commands through runner.
func NewOpenSSL(runner toolexec.Runner, opts ...OpenSSLOption) *OpenSSL {
	o := &OpenSSL{runner: runner, bin: "openssl"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenSSL) GenerateKey(ctx context.Context, keyPath string, bits int) error {
	_, err := o.runner.Run(ctx, o.bin, "genrsa", "-out", keyPath, strconv.Itoa(bits))
	return err
}

func (o *OpenSSL) SelfSign(ctx context.Context, keyPath, certPath, commonName string, days int) error {
	_, err := o.runner.Run(ctx, o.bin,
		"req", "-x509", "-new",
		"-key", keyPath,
		"-sha256",
		"-days", strconv.Itoa(days),
		"-out", certPath,
		"-subj", "/CN="+commonName,
	)
	return err
}

func (o *OpenSSL) SignRequest(ctx context.Context, req SignRequest) error {
	conf, err := os.CreateTemp(o.tempDir, "sslinker-san-*.cnf")
	if err != nil {
		return fmt.Errorf("creating extension config: %w", err)
	}
	defer os.Remove(conf.Name())
	if _, err := conf.WriteString(ExtensionConfig(req.SANs)); err != nil {
		conf.Close()
		return fmt.Errorf("writing extension config: %w", err)
	}
	if err := conf.Close(); err != nil {
		return fmt.Errorf("writing extension config: %w", err)
	}

	_, err = o.runner.Run(ctx, o.bin,
		"req", "-new",
		"-key", req.KeyPath,
		"-out", req.RequestPath,
		"-subj", "/CN="+req.CommonName,
		"-config", conf.Name(),
		"-reqexts", "v3_req",
	)
	if err != nil {
		return err
	}
	_, err = o.runner.Run(ctx, o.bin,
		"x509", "-req",
		"-in", req.RequestPath,
		"-CA", req.CACertPath,
		"-CAkey", req.CAKeyPath,
		"-CAcreateserial",
		"-out", req.CertPath,
		"-days", strconv.Itoa(req.Days),
		"-sha256",
		"-extensions", "v3_req",
		"-extfile", conf.Name(),
	)
	return err
}

// ExtensionConfig renders an openssl config whose v3_req section carries the
// SAN entries. Entries are numbered per type in input order.
func ExtensionConfig(sans []SAN) string {
	var b strings.Builder
	b.WriteString("[req]\n")
	b.WriteString("distinguished_name=req_distinguished_name\n")
	b.WriteString("req_extensions=v3_req\n")
	b.WriteString("[req_distinguished_name]\n")
	b.WriteString("[v3_req]\n")
	b.WriteString("basicConstraints=CA:FALSE\n")
	b.WriteString("keyUsage=digitalSignature,keyEncipherment\n")
	b.WriteString("extendedKeyUsage=serverAuth\n")
	if len(sans) == 0 {
		return b.String()
	}
	b.WriteString("subjectAltName=@alt_names\n")
	b.WriteString("[alt_names]\n")
	counts := make(map[SANType]int)
	for _, san := range sans {
		counts[san.Type]++
		fmt.Fprintf(&b, "%s.%d=%s\n", san.Type, counts[san.Type], san.Value)
	}
	return b.String()
}
