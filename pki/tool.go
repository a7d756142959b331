package pki

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// CryptoTool abstracts the three key and certificate operations the
// authority needs, so that the openssl command line, an in-process
// implementation, or a test fake can be used without changing calling code.
//
// Each method is synchronous. A failure aborts the calling operation; tools
// backed by external processes return a *toolexec.Error.
type CryptoTool interface {
	// GenerateKey writes a new RSA private key of the given size to keyPath.
	GenerateKey(ctx context.Context, keyPath string, bits int) error

	// SelfSign writes a self-signed CA certificate for the key at keyPath.
	SelfSign(ctx context.Context, keyPath, certPath, commonName string, days int) error

	// SignRequest builds a signing request for req.KeyPath carrying the
	// SAN extension and signs it with the CA pair, writing req.CertPath.
	// The request file at req.RequestPath is left for the caller to remove.
	SignRequest(ctx context.Context, req SignRequest) error
}

// SignRequest holds the parameters for issuing a leaf certificate.
type SignRequest struct {
	KeyPath     string
	RequestPath string
	CertPath    string
	CAKeyPath   string
	CACertPath  string
	CommonName  string
	Days        int
	SANs        []SAN
}

// SANType is the kind of a Subject Alternative Name entry.
type SANType string

const (
	SANDNS SANType = "DNS"
	SANIP  SANType = "IP"
)

// SAN is one Subject Alternative Name entry.
type SAN struct {
	Type  SANType
	Value string
}

func (s SAN) String() string {
	return string(s.Type) + ":" + s.Value
}

// MarshalText renders the entry in openssl notation.
func (s SAN) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BuildSANs returns the SAN list for a leaf: the domain first, then each IP
// in input order.
func BuildSANs(domain string, ips []netip.Addr) []SAN {
	sans := make([]SAN, 0, 1+len(ips))
	sans = append(sans, SAN{Type: SANDNS, Value: domain})
	for _, ip := range ips {
		sans = append(sans, SAN{Type: SANIP, Value: ip.String()})
	}
	return sans
}

// ParseIPList parses a comma-separated IP list. Entries are trimmed and
// empty entries are skipped.
func ParseIPList(s string) ([]netip.Addr, error) {
	var ips []netip.Addr
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ip, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIP, part)
		}
		ips = append(ips, ip)
	}
	return ips, nil
}
