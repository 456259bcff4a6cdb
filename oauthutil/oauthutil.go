// Package oauthutil provides stateless helpers shared by the authorization
// server core and by clients exercising it: PKCE challenge derivation, URL
// composition, and opaque-token hashing and namespacing.
package oauthutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// ErrMissingPrefix is returned by StripPrefix when the token does not start
// with the expected namespace prefix.
var ErrMissingPrefix = errors.New("token does not contain expected prefix")

// DeriveCodeChallenge computes the S256 PKCE code challenge for a verifier
// per RFC 7636: the SHA-256 digest of the verifier, base64url-encoded
// without padding. Deterministic, so the server recomputes it at redemption
// and compares against the stored challenge.
func DeriveCodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// JoinURL appends path to base with exactly one separating slash, regardless
// of trailing slashes on base or leading slashes on path. An empty path
// returns base with any trailing slash removed and no slash appended.
func JoinURL(base, path string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		// base is opaque; fall back to plain string joining
		trimmed := strings.TrimRight(base, "/")
		appendPath := strings.TrimLeft(path, "/")
		if appendPath == "" {
			return trimmed
		}
		return trimmed + "/" + appendPath
	}
	basePath := strings.TrimRight(parsed.Path, "/")
	appendPath := strings.TrimLeft(path, "/")
	if appendPath == "" {
		parsed.Path = basePath
	} else {
		parsed.Path = basePath + "/" + appendPath
	}
	return parsed.String()
}

// ComposeRedirect merges params into any query string already present on
// base, preserving prior parameters. Empty values are omitted so callers can
// pass optional parameters unconditionally.
func ComposeRedirect(base string, params map[string]string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	for key, value := range params {
		if value == "" {
			continue
		}
		query.Add(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// HashToken computes the keyed HMAC-SHA256 hash of an opaque token, hex
// encoded. Storage backends persist only this hash so a leaked datastore
// never reveals usable bearer tokens.
func HashToken(token, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// ApplyPrefix prepends a cosmetic namespace prefix to a token. An empty
// prefix returns the token unchanged.
func ApplyPrefix(token, prefix string) string {
	if prefix == "" {
		return token
	}
	return prefix + token
}

// StripPrefix removes the namespace prefix from a token. Returns
// ErrMissingPrefix if the token does not start with it.
func StripPrefix(token, prefix string) (string, error) {
	if prefix == "" {
		return token, nil
	}
	if !strings.HasPrefix(token, prefix) {
		return "", ErrMissingPrefix
	}
	return token[len(prefix):], nil
}
