package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/storage"
)

func testClient(uris, scopes []string) *storage.Client {
	return &storage.Client{
		ID:           "client-1",
		RedirectURIs: uris,
		Scopes:       scopes,
	}
}

func TestValidateRedirectURI(t *testing.T) {
	srv := newTestServer(t, nil)
	single := testClient([]string{"https://a.example.com/cb"}, nil)
	multi := testClient([]string{"https://a.example.com/cb", "https://b.example.com/cb"}, nil)

	t.Run("absent defaults to single registration", func(t *testing.T) {
		uri, explicit, err := srv.ValidateRedirectURI(single, "")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if uri != "https://a.example.com/cb" || explicit {
			t.Fatalf("got %q explicit=%v", uri, explicit)
		}
	})

	t.Run("absent with multiple registrations fails", func(t *testing.T) {
		_, _, err := srv.ValidateRedirectURI(multi, "")
		if !errors.Is(err, belgie.ErrInvalidRedirectURI("")) {
			t.Fatalf("error = %v, want invalid_redirect_uri", err)
		}
	})

	t.Run("exact match", func(t *testing.T) {
		uri, explicit, err := srv.ValidateRedirectURI(multi, "https://b.example.com/cb")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if uri != "https://b.example.com/cb" || !explicit {
			t.Fatalf("got %q explicit=%v", uri, explicit)
		}
	})

	t.Run("near miss fails", func(t *testing.T) {
		for _, requested := range []string{
			"https://a.example.com/cb/",
			"https://a.example.com/CB",
			"http://a.example.com/cb",
			"https://a.example.com/cb?x=1",
		} {
			if _, _, err := srv.ValidateRedirectURI(single, requested); !errors.Is(err, belgie.ErrInvalidRedirectURI("")) {
				t.Fatalf("ValidateRedirectURI(%q) error = %v, want invalid_redirect_uri", requested, err)
			}
		}
	})
}

func TestValidateScope(t *testing.T) {
	srv := newTestServer(t, nil)
	client := testClient(nil, []string{"user", "profile"})

	t.Run("empty means no restriction", func(t *testing.T) {
		scopes, err := srv.ValidateScope(client, "")
		if err != nil || scopes != nil {
			t.Fatalf("got %v, %v, want nil, nil", scopes, err)
		}
		scopes, err = srv.ValidateScope(client, "   ")
		if err != nil || scopes != nil {
			t.Fatalf("whitespace: got %v, %v, want nil, nil", scopes, err)
		}
	})

	t.Run("subset passes", func(t *testing.T) {
		scopes, err := srv.ValidateScope(client, "profile user")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if len(scopes) != 2 || scopes[0] != "profile" || scopes[1] != "user" {
			t.Fatalf("scopes = %v", scopes)
		}
	})

	t.Run("escalation fails", func(t *testing.T) {
		if _, err := srv.ValidateScope(client, "user admin"); !errors.Is(err, belgie.ErrInvalidScope("")) {
			t.Fatalf("error = %v, want invalid_scope", err)
		}
	})

	t.Run("no registration falls back to default scope", func(t *testing.T) {
		bare := testClient(nil, nil)
		scopes, err := srv.ValidateScope(bare, "user")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if len(scopes) != 1 || scopes[0] != "user" {
			t.Fatalf("scopes = %v", scopes)
		}
		if _, err := srv.ValidateScope(bare, "other"); !errors.Is(err, belgie.ErrInvalidScope("")) {
			t.Fatalf("error = %v, want invalid_scope", err)
		}
	})
}

func TestRegisterClient(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	t.Run("confidential", func(t *testing.T) {
		reg, err := srv.RegisterClient(ctx, "My App", []string{"https://my.example.com/cb"}, []string{"user"}, "client_secret_post")
		if err != nil {
			t.Fatalf("RegisterClient() error: %v", err)
		}
		if !strings.HasPrefix(reg.ClientID, "belgie_client_") {
			t.Errorf("ClientID = %q", reg.ClientID)
		}
		if reg.Secret == "" {
			t.Fatal("confidential client got no secret")
		}
		if reg.Public {
			t.Fatal("confidential client marked public")
		}

		stored, err := srv.store.GetClient(ctx, reg.ClientID)
		if err != nil {
			t.Fatalf("GetClient() error: %v", err)
		}
		if len(stored.SecretHash) == 0 {
			t.Fatal("secret hash not persisted")
		}
		if string(stored.SecretHash) == reg.Secret {
			t.Fatal("plaintext secret persisted")
		}
		if err := srv.validateClientSecret(stored, reg.Secret); err != nil {
			t.Fatalf("issued secret rejected: %v", err)
		}
		if err := srv.validateClientSecret(stored, "wrong"); err == nil {
			t.Fatal("wrong secret accepted")
		}
	})

	t.Run("public", func(t *testing.T) {
		reg, err := srv.RegisterClient(ctx, "CLI Tool", []string{"https://cli.example.com/cb"}, nil, "none")
		if err != nil {
			t.Fatalf("RegisterClient() error: %v", err)
		}
		if !reg.Public || reg.Secret != "" {
			t.Fatalf("public client registration = %+v", reg)
		}
		// Defaults to the server scope.
		if len(reg.Scopes) != 1 || reg.Scopes[0] != "user" {
			t.Errorf("Scopes = %v", reg.Scopes)
		}
	})

	t.Run("no redirect URIs", func(t *testing.T) {
		if _, err := srv.RegisterClient(ctx, "Bad", nil, nil, "none"); !errors.Is(err, belgie.ErrInvalidRequest("")) {
			t.Fatalf("error = %v, want invalid_request", err)
		}
	})
}
