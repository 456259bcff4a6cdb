package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// legacyKeys were renamed in earlier releases. Loading a file that still
// uses one fails loudly instead of silently ignoring the setting.
var legacyKeys = map[string]string{
	"route_prefix":        "prefix",
	"resource_server_url": "resource_url",
}

// fileConfig mirrors the YAML layout. Durations are seconds, matching the
// *_ttl naming.
type fileConfig struct {
	RedirectURIs         []string `yaml:"redirect_uris"`
	BaseURL              string   `yaml:"base_url"`
	Prefix               string   `yaml:"prefix"`
	LoginURL             string   `yaml:"login_url"`
	ClientID             string   `yaml:"client_id"`
	ClientSecret         string   `yaml:"client_secret"`
	DefaultScope         string   `yaml:"default_scope"`
	AllowedScopes        []string `yaml:"allowed_scopes"`
	AuthorizationCodeTTL int      `yaml:"authorization_code_ttl"`
	AccessTokenTTL       int      `yaml:"access_token_ttl"`
	RefreshTokenTTL      int      `yaml:"refresh_token_ttl"`
	StateTTL             int      `yaml:"state_ttl"`
	CodeChallengeMethod  string   `yaml:"code_challenge_method"`
	SessionMaxAge        int      `yaml:"session_max_age"`
	SessionUpdateAge     int      `yaml:"session_update_age"`
	TokenPrefix          string   `yaml:"token_prefix"`
	TokenHashSecret      string   `yaml:"token_hash_secret"`
	ResourceURL          string   `yaml:"resource_url"`
	IntrospectionRPS     int      `yaml:"introspection_rps"`
	IntrospectionBurst   int      `yaml:"introspection_burst"`
	DisableAuditLog      bool     `yaml:"disable_audit_log"`
}

// LoadConfig reads a YAML configuration file into a Config. Store, Logger,
// and Instrumentation are runtime objects the caller wires afterwards.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for legacy, replacement := range legacyKeys {
		if _, ok := raw[legacy]; ok {
			return nil, fmt.Errorf("config key %q was removed; use %q instead", legacy, replacement)
		}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{
		RedirectURIs:         fc.RedirectURIs,
		BaseURL:              fc.BaseURL,
		Prefix:               fc.Prefix,
		LoginURL:             fc.LoginURL,
		ClientID:             fc.ClientID,
		ClientSecret:         fc.ClientSecret,
		DefaultScope:         fc.DefaultScope,
		AllowedScopes:        fc.AllowedScopes,
		AuthorizationCodeTTL: time.Duration(fc.AuthorizationCodeTTL) * time.Second,
		AccessTokenTTL:       time.Duration(fc.AccessTokenTTL) * time.Second,
		RefreshTokenTTL:      time.Duration(fc.RefreshTokenTTL) * time.Second,
		StateTTL:             time.Duration(fc.StateTTL) * time.Second,
		CodeChallengeMethod:  fc.CodeChallengeMethod,
		SessionMaxAge:        time.Duration(fc.SessionMaxAge) * time.Second,
		SessionUpdateAge:     time.Duration(fc.SessionUpdateAge) * time.Second,
		TokenPrefix:          fc.TokenPrefix,
		TokenHashSecret:      fc.TokenHashSecret,
		ResourceURL:          fc.ResourceURL,
		IntrospectionRPS:     fc.IntrospectionRPS,
		IntrospectionBurst:   fc.IntrospectionBurst,
		DisableAuditLog:      fc.DisableAuditLog,
	}
	return cfg, nil
}
