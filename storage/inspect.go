package storage

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/sslinker/internal/util"
)

// ErrInvalidCertificate is returned when certificate bytes cannot be decoded.
var ErrInvalidCertificate = errors.New("invalid certificate data")

// Certificate status values.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// CertInfo is metadata extracted from a certificate file.
type CertInfo struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	DNSNames     []string  `json:"dns_names,omitempty"`
	IPAddresses  []string  `json:"ip_addresses,omitempty"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	Fingerprint  string    `json:"fingerprint_sha256"`
	KeyAlgorithm string    `json:"key_algorithm"`
	IsCA         bool      `json:"is_ca"`
	Status       string    `json:"status"`
}

// ParseCertificate decodes the first certificate in data, which may be PEM or
// raw DER (common for .cer files).
func ParseCertificate(data []byte) (*CertInfo, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidCertificate, block.Type)
		}
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	sum := sha256.Sum256(cert.Raw)
	info := &CertInfo{
		Subject:      subjectString(cert.Subject),
		Issuer:       subjectString(cert.Issuer),
		SerialNumber: hex.EncodeToString(cert.SerialNumber.Bytes()),
		DNSNames:     cert.DNSNames,
		NotBefore:    cert.NotBefore.UTC(),
		NotAfter:     cert.NotAfter.UTC(),
		Fingerprint:  util.Fingerprint(sum[:]),
		KeyAlgorithm: keyAlgorithmString(cert),
		IsCA:         cert.IsCA,
		Status:       certStatus(cert, time.Now()),
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info, nil
}

// subjectString formats a pkix.Name as a readable DN string.
func subjectString(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ", ")
}

func certStatus(cert *x509.Certificate, now time.Time) string {
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return StatusExpired
	}
	return StatusActive
}

func keyAlgorithmString(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s", pub.Curve.Params().Name)
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}
