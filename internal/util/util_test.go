package util

import (
	"testing"
)

func TestNormalizeName(t *testing.T) {
	// "é" as e + combining acute accent folds to the precomposed rune.
	decomposed := "  cafe\u0301  "
	got := NormalizeName(decomposed)
	if got != "caf\u00e9" {
		t.Errorf("expected NFC form, got %q", got)
	}

	if NormalizeName("example.com") != "example.com" {
		t.Error("ASCII names should be unchanged")
	}
}

func TestFingerprint(t *testing.T) {
	got := Fingerprint([]byte{0x0a, 0xff, 0x10})
	if got != "0A:FF:10" {
		t.Errorf("expected 0A:FF:10, got %s", got)
	}
	if Fingerprint(nil) != "" {
		t.Error("empty digest should format as empty string")
	}
}
