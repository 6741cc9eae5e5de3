package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServeTestApp(t *testing.T, prefix string) *App {
	t.Helper()

	cfg := &bridge.Config{
		BaseURL: "https://example.com",
		Prefix:  prefix,
		HTTP:    bridge.HTTPServerConfig{Views: "../../views"},
	}

	registry, err := bridge.NewRegistry([]bridge.StrategySpec{{
		Name:    "acme",
		Label:   "Acme",
		Factory: oauth.Factory,
		Options: bridge.Options{
			"client_id":    "client-id",
			"auth_url":     "https://idp.example.com/authorize",
			"token_url":    "https://idp.example.com/token",
			"userinfo_url": "https://idp.example.com/userinfo",
		},
	}}, bridge.WithBaseURL(cfg.BaseURL), bridge.WithPrefix(prefix))
	require.NoError(t, err)

	codec, err := bridge.NewJWTSessionCodec([]byte("0123456789abcdef0123456789abcdef"), cfg.BaseURL, time.Hour)
	require.NoError(t, err)
	states, err := bridge.NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210fedcba9876543210"),
		time.Minute,
	)
	require.NoError(t, err)

	sessions := bridge.NewCookieSessionStore(codec, bridge.CookieConfig{Name: "bridge_session"})
	controller := bridge.NewHTTPController(registry, sessions, states, bridge.HTTPConfig{})

	return &App{Config: cfg, Registry: registry, Controller: controller}
}

func TestHTTPServerMountsRoutesUnderPrefix(t *testing.T) {
	app := newServeTestApp(t, "/cms")

	callback, err := url.Parse(app.Registry.URLs()[0].CallbackURL)
	require.NoError(t, err)
	assert.Equal(t, "/cms/auth/acme/callback", callback.Path)

	srv := newHTTPServer(app)
	srv.Init()
	fiberApp := srv.WrappedRouter()

	resp, err := fiberApp.Test(httptest.NewRequest(http.MethodGet, "/cms/auth/acme/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "https://idp.example.com/authorize")

	// a callback without state is handled by the bridge, not a missing route
	resp, err = fiberApp.Test(httptest.NewRequest(http.MethodGet, callback.Path, nil))
	require.NoError(t, err)
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)

	resp, err = fiberApp.Test(httptest.NewRequest(http.MethodGet, "/auth/acme/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServerMountsRoutesAtRootWithoutPrefix(t *testing.T) {
	app := newServeTestApp(t, "")

	srv := newHTTPServer(app)
	srv.Init()

	resp, err := srv.WrappedRouter().Test(httptest.NewRequest(http.MethodGet, "/auth/acme/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
}
