package token

import (
	"encoding/hex"
	"testing"
)

func TestNewOpaque(t *testing.T) {
	tok, err := NewOpaque()
	if err != nil {
		t.Fatalf("NewOpaque failed: %v", err)
	}

	if len(tok) != 64 {
		t.Errorf("len = %d, want 64", len(tok))
	}
	if _, err := hex.DecodeString(tok); err != nil {
		t.Errorf("token is not hex: %v", err)
	}
}

func TestNewOpaque_IsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewOpaque()
		if err != nil {
			t.Fatalf("NewOpaque failed: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}
