package security

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestHashRefreshToken_StoredForm(t *testing.T) {
	h := HashRefreshToken("rt-abc")
	if len(h) != 64 || strings.Trim(h, "0123456789abcdef") != "" {
		t.Fatalf("stored form = %q, want 64 lowercase hex chars", h)
	}
	if HashRefreshToken("rt-abc") != h {
		t.Error("hash is not deterministic")
	}
	if HashRefreshToken("rt-abd") == h {
		t.Error("distinct tokens share a hash")
	}
}

func TestHashEqual(t *testing.T) {
	a := HashRefreshToken("rt-1")
	cases := []struct {
		name string
		b    string
		want bool
	}{
		{"same hash", HashRefreshToken("rt-1"), true},
		{"other token", HashRefreshToken("rt-2"), false},
		{"truncated", a[:32], false},
		{"raw token", "rt-1", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HashEqual(a, tc.b); got != tc.want {
				t.Errorf("HashEqual = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIssueRefresh_HashRoundTrip(t *testing.T) {
	p, err := NewTestTokenProvider(0)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	tok, err := p.IssueRefresh()
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if strings.ContainsAny(tok, "=+/") {
		t.Errorf("token %q is not unpadded base64url", tok)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != refreshTokenBytes || refreshTokenBytes*8 != 256 {
		t.Errorf("token carries %d bytes, want 32", len(raw))
	}

	stored := HashRefreshToken(tok)
	if stored == tok {
		t.Fatal("stored form equals the plaintext token")
	}
	if !HashEqual(HashRefreshToken(tok), stored) {
		t.Error("presented token does not match its stored hash")
	}

	other, _ := p.IssueRefresh()
	if HashEqual(HashRefreshToken(other), stored) {
		t.Error("a second token matched the first token's hash")
	}
}
