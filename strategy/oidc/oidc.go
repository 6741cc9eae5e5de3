// Package oidc provides an OpenID Connect strategy. Endpoints come from the
// issuer's discovery document and the profile from the verified ID token.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"golang.org/x/oauth2"
)

// Module is the registry key of the OpenID Connect strategy.
const Module = "oidc"

// DiscoveryTimeout bounds the discovery request made by Factory.
var DiscoveryTimeout = 15 * time.Second

// Config holds OpenID Connect configuration.
type Config struct {
	oauth.Config `mapstructure:",squash"`

	Issuer string `mapstructure:"issuer"`
	// UserInfo merges the userinfo response into the ID token claims.
	UserInfo bool `mapstructure:"userinfo"`
}

// New discovers the issuer and creates the strategy.
func New(ctx context.Context, cfg Config, verify bridge.VerifyFunc, opts ...oauth.Option) (*oauth.Strategy, error) {
	return NewWithClient(ctx, cfg, verify, nil, opts...)
}

// NewWithClient is New with the HTTP client used for discovery, key fetches
// and token requests.
func NewWithClient(ctx context.Context, cfg Config, verify bridge.VerifyFunc, client *http.Client, opts ...oauth.Option) (*oauth.Strategy, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client_id is required")
	}
	if cfg.Name == "" {
		cfg.Name = Module
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(cfg.Scopes, oidc.ScopeOpenID) {
		return nil, errors.New("openid scope is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", cfg.Issuer, err)
	}

	endpoint := provider.Endpoint()
	cfg.AuthURL = endpoint.AuthURL
	cfg.TokenURL = endpoint.TokenURL
	if cfg.AuthStyle == "" {
		cfg.AuthStyle = "params"
	}

	fetcher := &profileFetcher{
		strategy: cfg.Name,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		userInfo: cfg.UserInfo,
	}

	opts = append([]oauth.Option{
		oauth.WithHTTPClient(client),
		oauth.WithProfileFunc(fetcher.fetch),
	}, opts...)
	return oauth.New(cfg.Config, verify, opts...)
}

// Factory builds the OpenID Connect strategy from registry options.
func Factory(options bridge.Options, verify bridge.VerifyFunc) (bridge.Strategy, error) {
	var cfg Config
	if err := oauth.Decode(options, &cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), DiscoveryTimeout)
	defer cancel()

	s, err := New(ctx, cfg, verify)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type profileFetcher struct {
	strategy string
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	userInfo bool
}

func (f *profileFetcher) fetch(ctx context.Context, client *http.Client, token *oauth2.Token) (*bridge.Profile, error) {
	ctx = oidc.ClientContext(ctx, client)

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "id_token", Code: "missing_id_token", Description: "provider did not return an id_token"}
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "id_token", Code: "invalid_id_token", Err: err}
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "id_token", Code: "invalid_claims", Err: err}
	}

	if f.userInfo {
		info, err := f.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "user_info", Err: err}
		}
		if info.Subject != idToken.Subject {
			return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "user_info", Code: "subject_mismatch"}
		}
		extra := map[string]any{}
		if err := info.Claims(&extra); err != nil {
			return nil, &bridge.ProviderError{Strategy: f.strategy, Operation: "user_info", Code: "invalid_claims", Err: err}
		}
		for k, v := range extra {
			if _, ok := claims[k]; !ok {
				claims[k] = v
			}
		}
	}

	return oauth.ProfileFromClaims(claims), nil
}
