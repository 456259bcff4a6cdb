package server

import (
	"net/url"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/oauthutil"
)

// Well-known path roots per RFC 8414 and RFC 9728.
const (
	WellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	WellKnownProtectedResource = "/.well-known/oauth-protected-resource"
)

// BuildAuthServerMetadata produces the RFC 8414 discovery document for this
// server. Requires a configured base URL to derive the issuer.
func (s *Server) BuildAuthServerMetadata() (*belgie.AuthorizationServerMetadata, error) {
	issuer := s.config.IssuerURL()
	if issuer == "" {
		return nil, belgie.ErrConfiguration("base URL required to build authorization server metadata")
	}

	return &belgie.AuthorizationServerMetadata{
		Issuer:                                    issuer,
		AuthorizationEndpoint:                     oauthutil.JoinURL(issuer, "authorize"),
		TokenEndpoint:                             oauthutil.JoinURL(issuer, "token"),
		RegistrationEndpoint:                      oauthutil.JoinURL(issuer, "register"),
		RevocationEndpoint:                        oauthutil.JoinURL(issuer, "revoke"),
		IntrospectionEndpoint:                     oauthutil.JoinURL(issuer, "introspect"),
		ScopesSupported:                           append([]string(nil), s.config.AllowedScopes...),
		ResponseTypesSupported:                    []string{"code"},
		GrantTypesSupported:                       []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported:         []string{"client_secret_post", "none"},
		RevocationEndpointAuthMethodsSupported:    []string{"client_secret_post", "none"},
		IntrospectionEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		CodeChallengeMethodsSupported:             []string{"S256"},
	}, nil
}

// BuildProtectedResourceMetadata produces the RFC 9728 document. Fails with
// a configuration error when no resource URL is configured.
func (s *Server) BuildProtectedResourceMetadata() (*belgie.ProtectedResourceMetadata, error) {
	if s.config.ResourceURL == "" {
		return nil, belgie.ErrConfiguration("resource URL required to build protected resource metadata")
	}
	issuer := s.config.IssuerURL()
	if issuer == "" {
		return nil, belgie.ErrConfiguration("base URL required to build protected resource metadata")
	}

	return &belgie.ProtectedResourceMetadata{
		Resource:             s.config.ResourceURL,
		AuthorizationServers: []string{issuer},
		ScopesSupported:      append([]string(nil), s.config.AllowedScopes...),
	}, nil
}

// WellKnownAuthServerPath returns the well-known path for the issuer: the
// RFC 8414 root plus the issuer's path component.
func (s *Server) WellKnownAuthServerPath() (string, error) {
	issuer := s.config.IssuerURL()
	if issuer == "" {
		return "", belgie.ErrConfiguration("base URL required to derive well-known path")
	}
	return wellKnownPath(WellKnownAuthServer, issuer)
}

// WellKnownProtectedResourcePath returns the well-known path for the
// configured resource URL. An empty resource path maps to the bare root.
func (s *Server) WellKnownProtectedResourcePath() (string, error) {
	if s.config.ResourceURL == "" {
		return "", belgie.ErrConfiguration("resource URL required to derive well-known path")
	}
	return wellKnownPath(WellKnownProtectedResource, s.config.ResourceURL)
}

func wellKnownPath(root, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", belgie.ErrConfiguration("invalid URL for well-known path")
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return root, nil
	}
	return oauthutil.JoinURL(root, parsed.Path), nil
}
