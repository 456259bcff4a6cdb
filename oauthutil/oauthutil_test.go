package oauthutil

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestDeriveCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	got := DeriveCodeChallenge(verifier)
	if got != want {
		t.Fatalf("DeriveCodeChallenge() = %q, want %q", got, want)
	}

	// Deterministic across calls.
	if again := DeriveCodeChallenge(verifier); again != got {
		t.Fatalf("DeriveCodeChallenge() not deterministic: %q vs %q", again, got)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"trailing and leading slash", "http://example.com/base/", "/authorize", "http://example.com/base/authorize"},
		{"empty path", "http://example.com/base", "", "http://example.com/base"},
		{"empty path strips trailing slash", "http://example.com/base/", "", "http://example.com/base"},
		{"no slashes", "http://example.com/base", "authorize", "http://example.com/base/authorize"},
		{"both slashless root", "http://example.com", "token", "http://example.com/token"},
		{"path only base", "/.well-known/oauth-authorization-server", "/auth/oauth", "/.well-known/oauth-authorization-server/auth/oauth"},
		{"unparseable base", "http://[::1/", "authorize", "http://[::1/authorize"},
		{"unparseable base empty path", "http://[::1/", "", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinURL(tt.base, tt.path); got != tt.want {
				t.Fatalf("JoinURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}

func TestComposeRedirect(t *testing.T) {
	got, err := ComposeRedirect("https://app.example.com/cb?keep=1", map[string]string{
		"code":  "abc",
		"state": "xyz",
		"empty": "",
	})
	if err != nil {
		t.Fatalf("ComposeRedirect() error: %v", err)
	}

	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("result not a URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("keep") != "1" {
		t.Errorf("pre-existing query parameter dropped: %q", got)
	}
	if query.Get("code") != "abc" || query.Get("state") != "xyz" {
		t.Errorf("new parameters missing: %q", got)
	}
	if query.Has("empty") {
		t.Errorf("empty-valued parameter should be omitted: %q", got)
	}
}

func TestComposeRedirectInvalidBase(t *testing.T) {
	if _, err := ComposeRedirect("://not-a-url", nil); err == nil {
		t.Fatal("expected error for invalid base URL")
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-value", "secret")
	b := HashToken("token-value", "secret")
	if a != b {
		t.Fatalf("HashToken not deterministic: %q vs %q", a, b)
	}
	if c := HashToken("token-value", "other-secret"); c == a {
		t.Fatal("HashToken ignores the secret")
	}
	if d := HashToken("other-value", "secret"); d == a {
		t.Fatal("HashToken ignores the token")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Fatalf("expected lowercase hex sha256 output, got %q", a)
	}
}

func TestPrefixRoundTrip(t *testing.T) {
	token := ApplyPrefix("abc123", "belgie_")
	if token != "belgie_abc123" {
		t.Fatalf("ApplyPrefix() = %q", token)
	}

	raw, err := StripPrefix(token, "belgie_")
	if err != nil {
		t.Fatalf("StripPrefix() error: %v", err)
	}
	if raw != "abc123" {
		t.Fatalf("StripPrefix() = %q, want %q", raw, "abc123")
	}
}

func TestStripPrefixMissing(t *testing.T) {
	if _, err := StripPrefix("abc123", "belgie_"); !errors.Is(err, ErrMissingPrefix) {
		t.Fatalf("StripPrefix() error = %v, want ErrMissingPrefix", err)
	}
}

func TestApplyPrefixEmpty(t *testing.T) {
	if got := ApplyPrefix("abc", ""); got != "abc" {
		t.Fatalf("ApplyPrefix with empty prefix = %q", got)
	}
	raw, err := StripPrefix("abc", "")
	if err != nil || raw != "abc" {
		t.Fatalf("StripPrefix with empty prefix = %q, %v", raw, err)
	}
}
