package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims s and folds it to Unicode NFC so that visually equal
// display names map to the same file base name.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Fingerprint formats a digest as upper-case hex octets separated by colons,
// the way openssl prints certificate fingerprints.
func Fingerprint(sum []byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}
