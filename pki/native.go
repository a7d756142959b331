package pki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Native implements CryptoTool in-process. It writes the same file formats as
// the openssl tool (PKCS#1 RSA keys, PEM certificates and requests) and is
// selected with tools.crypto=native on hosts without openssl.
type Native struct {
	now func() time.Time
}

var _ CryptoTool = (*Native)(nil)

// NewNative returns a Native tool.
func NewNative() *Native {
	return &Native{now: time.Now}
}

func (n *Native) GenerateKey(_ context.Context, keyPath string, bits int) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generating RSA-%d key: %w", bits, err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600)
}

func (n *Native) SelfSign(_ context.Context, keyPath, certPath, commonName string, days int) error {
	key, err := loadRSAKey(keyPath)
	if err != nil {
		return err
	}
	serial, err := randomSerial()
	if err != nil {
		return err
	}
	now := n.now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, days),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return fmt.Errorf("creating CA certificate: %w", err)
	}
	return writePEM(certPath, "CERTIFICATE", der, 0o644)
}

func (n *Native) SignRequest(_ context.Context, req SignRequest) error {
	key, err := loadRSAKey(req.KeyPath)
	if err != nil {
		return err
	}
	caKey, err := loadRSAKey(req.CAKeyPath)
	if err != nil {
		return err
	}
	caCert, err := loadCertificate(req.CACertPath)
	if err != nil {
		return err
	}

	var (
		dnsNames []string
		ips      []net.IP
	)
	for _, san := range req.SANs {
		switch san.Type {
		case SANDNS:
			dnsNames = append(dnsNames, san.Value)
		case SANIP:
			ips = append(ips, net.ParseIP(san.Value))
		}
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:     pkix.Name{CommonName: req.CommonName},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}, key)
	if err != nil {
		return fmt.Errorf("creating signing request: %w", err)
	}
	if err := writePEM(req.RequestPath, "CERTIFICATE REQUEST", csrDER, 0o644); err != nil {
		return err
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return fmt.Errorf("parsing signing request: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}
	now := n.now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, req.Days),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              csr.DNSNames,
		IPAddresses:           csr.IPAddresses,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("signing leaf certificate: %w", err)
	}
	return writePEM(req.CertPath, "CERTIFICATE", der, 0o644)
}

var errNoPEM = errors.New("no PEM block found")

func loadRSAKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoPEM)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: not an RSA key", path)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%s: unexpected PEM block %q", path, block.Type)
	}
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoPEM)
	}
	return x509.ParseCertificate(block.Bytes)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), perm)
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}
	return serial, nil
}
