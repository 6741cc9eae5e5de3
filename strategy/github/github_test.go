package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyAuthorizeURL(t *testing.T) {
	strategy, err := New(Config{Config: oauth.Config{
		ClientID:    "client-id",
		CallbackURL: "https://example.com/callback",
	}}, func(context.Context, *bridge.Tokens, *bridge.Profile) (*bridge.User, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, "github", strategy.Name())

	authURL := strategy.AuthorizeURL("state-token", bridge.AuthorizeParams{CodeChallenge: "challenge"})

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "github.com", parsed.Host)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "https://example.com/callback", query.Get("redirect_uri"))
	assert.Equal(t, "state-token", query.Get("state"))
	assert.Equal(t, "challenge", query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "user:email read:user", query.Get("scope"))
}

func newGitHubServer(t *testing.T, emailsStatus int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/oauth/access_token":
			assert.Equal(t, http.MethodPost, r.Method)
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			values, err := url.ParseQuery(string(body))
			assert.NoError(t, err)
			assert.Equal(t, "client-id", values.Get("client_id"))
			assert.Equal(t, "client-secret", values.Get("client_secret"))

			w.Header().Set("Content-Type", "application/json")
			if values.Get("code") != "auth-code" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":             "bad_verification_code",
					"error_description": "bad code",
				})
				return
			}
			assert.Equal(t, "verifier", values.Get("code_verifier"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token",
				"token_type":   "bearer",
				"scope":        "user:email,read:user",
			})
		case "/user":
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":         1234,
				"login":      "octo",
				"name":       "Octo Cat",
				"email":      "public@example.com",
				"avatar_url": "https://example.com/avatar.png",
				"html_url":   "https://github.com/octo",
			})
		case "/user/emails":
			if emailsStatus != http.StatusOK {
				w.WriteHeader(emailsStatus)
				_ = json.NewEncoder(w).Encode(map[string]any{"message": "Resource not accessible by integration"})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"email": "unverified@example.com", "primary": false, "verified": false},
				{"email": "work@example.com", "primary": false, "verified": true},
				{"email": "octo@example.com", "primary": true, "verified": true},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testOptions(server *httptest.Server) bridge.Options {
	return bridge.Options{
		"client_id":              "client-id",
		"client_secret":          "client-secret",
		bridge.OptionCallbackURL: "https://example.com/callback",
		"auth_url":               server.URL + "/login/oauth/authorize",
		"token_url":              server.URL + "/login/oauth/access_token",
		"user_url":               server.URL + "/user",
		"emails_url":             server.URL + "/user/emails",
	}
}

func TestStrategyAuthenticate(t *testing.T) {
	server := newGitHubServer(t, http.StatusOK)

	var profile *bridge.Profile
	var tokens *bridge.Tokens
	strategy, err := Factory(testOptions(server), func(ctx context.Context, tk *bridge.Tokens, p *bridge.Profile) (*bridge.User, error) {
		tokens, profile = tk, p
		return &bridge.User{Username: p.Username}, nil
	})
	require.NoError(t, err)

	user, err := strategy.Authenticate(context.Background(), bridge.CallbackParams{Code: "auth-code", CodeVerifier: "verifier"})
	require.NoError(t, err)
	assert.Equal(t, "octo", user.Username)

	assert.Equal(t, "token", tokens.AccessToken)
	assert.Equal(t, "1234", profile.ID)
	assert.Equal(t, "Octo Cat", profile.DisplayName)
	assert.Equal(t, "octo@example.com", profile.Email)
	require.Len(t, profile.Emails, 2)
	assert.Equal(t, "octo@example.com", profile.Emails[0].Value)
	assert.Equal(t, "work@example.com", profile.Emails[1].Value)
}

func TestStrategyAuthenticateWithoutEmailScope(t *testing.T) {
	server := newGitHubServer(t, http.StatusForbidden)

	var profile *bridge.Profile
	strategy, err := Factory(testOptions(server), func(ctx context.Context, tk *bridge.Tokens, p *bridge.Profile) (*bridge.User, error) {
		profile = p
		return &bridge.User{}, nil
	})
	require.NoError(t, err)

	_, err = strategy.Authenticate(context.Background(), bridge.CallbackParams{Code: "auth-code", CodeVerifier: "verifier"})
	require.NoError(t, err)
	assert.Empty(t, profile.Emails)
	assert.Equal(t, "public@example.com", profile.Email)
}

func TestStrategyExchangeErrorNormalized(t *testing.T) {
	server := newGitHubServer(t, http.StatusOK)

	strategy, err := Factory(testOptions(server), func(context.Context, *bridge.Tokens, *bridge.Profile) (*bridge.User, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = strategy.Authenticate(context.Background(), bridge.CallbackParams{Code: "bad-code"})
	require.Error(t, err)

	var perr *bridge.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "github", perr.Strategy)
	assert.Equal(t, "exchange", perr.Operation)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, "bad_verification_code", perr.Code)
}
