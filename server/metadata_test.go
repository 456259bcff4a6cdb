package server

import (
	"errors"
	"testing"

	belgie "github.com/mplemay/belgie-sub001"
)

func TestBuildAuthServerMetadata(t *testing.T) {
	srv := newTestServer(t, nil)

	metadata, err := srv.BuildAuthServerMetadata()
	if err != nil {
		t.Fatalf("BuildAuthServerMetadata() error: %v", err)
	}

	issuer := "https://auth.example.com/auth/oauth"
	if metadata.Issuer != issuer {
		t.Errorf("Issuer = %q, want %q", metadata.Issuer, issuer)
	}
	if metadata.AuthorizationEndpoint != issuer+"/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", metadata.AuthorizationEndpoint)
	}
	if metadata.TokenEndpoint != issuer+"/token" {
		t.Errorf("TokenEndpoint = %q", metadata.TokenEndpoint)
	}
	if metadata.RegistrationEndpoint != issuer+"/register" {
		t.Errorf("RegistrationEndpoint = %q", metadata.RegistrationEndpoint)
	}
	if metadata.RevocationEndpoint != issuer+"/revoke" {
		t.Errorf("RevocationEndpoint = %q", metadata.RevocationEndpoint)
	}
	if metadata.IntrospectionEndpoint != issuer+"/introspect" {
		t.Errorf("IntrospectionEndpoint = %q", metadata.IntrospectionEndpoint)
	}
	if len(metadata.ResponseTypesSupported) != 1 || metadata.ResponseTypesSupported[0] != "code" {
		t.Errorf("ResponseTypesSupported = %v", metadata.ResponseTypesSupported)
	}
	if len(metadata.CodeChallengeMethodsSupported) != 1 || metadata.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("CodeChallengeMethodsSupported = %v", metadata.CodeChallengeMethodsSupported)
	}
	if len(metadata.GrantTypesSupported) != 2 {
		t.Errorf("GrantTypesSupported = %v", metadata.GrantTypesSupported)
	}
}

func TestBuildAuthServerMetadataNoBaseURL(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.BaseURL = "" })

	if _, err := srv.BuildAuthServerMetadata(); !errors.Is(err, belgie.ErrConfiguration("")) {
		t.Fatalf("error = %v, want configuration_error", err)
	}
}

func TestBuildProtectedResourceMetadata(t *testing.T) {
	srv := newTestServer(t, nil)

	metadata, err := srv.BuildProtectedResourceMetadata()
	if err != nil {
		t.Fatalf("BuildProtectedResourceMetadata() error: %v", err)
	}
	if metadata.Resource != "https://api.example.com" {
		t.Errorf("Resource = %q", metadata.Resource)
	}
	if len(metadata.AuthorizationServers) != 1 || metadata.AuthorizationServers[0] != "https://auth.example.com/auth/oauth" {
		t.Errorf("AuthorizationServers = %v", metadata.AuthorizationServers)
	}
}

func TestBuildProtectedResourceMetadataRequiresResourceURL(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.ResourceURL = "" })

	if _, err := srv.BuildProtectedResourceMetadata(); !errors.Is(err, belgie.ErrConfiguration("")) {
		t.Fatalf("error = %v, want configuration_error", err)
	}
}

func TestWellKnownPaths(t *testing.T) {
	srv := newTestServer(t, nil)

	authPath, err := srv.WellKnownAuthServerPath()
	if err != nil {
		t.Fatalf("WellKnownAuthServerPath() error: %v", err)
	}
	if authPath != "/.well-known/oauth-authorization-server/auth/oauth" {
		t.Errorf("auth server path = %q", authPath)
	}

	resourcePath, err := srv.WellKnownProtectedResourcePath()
	if err != nil {
		t.Fatalf("WellKnownProtectedResourcePath() error: %v", err)
	}
	// Resource URL has no path component, so the bare root applies.
	if resourcePath != "/.well-known/oauth-protected-resource" {
		t.Errorf("protected resource path = %q", resourcePath)
	}
}

func TestWellKnownProtectedResourcePathWithPath(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ResourceURL = "https://api.example.com/v1/files"
	})

	path, err := srv.WellKnownProtectedResourcePath()
	if err != nil {
		t.Fatalf("WellKnownProtectedResourcePath() error: %v", err)
	}
	if path != "/.well-known/oauth-protected-resource/v1/files" {
		t.Errorf("path = %q", path)
	}
}
