package notify

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is a base64url-encoded 65-byte uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key is a base64url-encoded 32-byte P-256 scalar.
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestSettlementPayload(t *testing.T) {
	p := SettlementPayload("Maya", "Morning Routine", 22, 0)
	if !strings.Contains(p.Body, "22 points") || strings.Contains(p.Body, "bonus") {
		t.Errorf("body = %q", p.Body)
	}

	p = SettlementPayload("Maya", "Morning Routine", 22, 20)
	if !strings.Contains(p.Body, "+20 bonus") {
		t.Errorf("body = %q", p.Body)
	}
	if p.Tag != "settlement-Maya" {
		t.Errorf("tag = %q", p.Tag)
	}
}
