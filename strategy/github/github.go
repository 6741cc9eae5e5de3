package github

import (
	"context"
	"net/http"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"golang.org/x/oauth2"
)

// Module is the registry key of the GitHub strategy.
const Module = "github"

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Config holds GitHub OAuth configuration.
type Config struct {
	oauth.Config `mapstructure:",squash"`

	UserURL   string `mapstructure:"user_url"`
	EmailsURL string `mapstructure:"emails_url"`
}

// New creates a GitHub strategy on top of the generic OAuth strategy.
func New(cfg Config, verify bridge.VerifyFunc, opts ...oauth.Option) (*oauth.Strategy, error) {
	if cfg.Name == "" {
		cfg.Name = Module
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}
	if cfg.AuthStyle == "" {
		cfg.AuthStyle = "params"
	}

	fetcher := &profileFetcher{strategy: cfg.Name, userURL: cfg.UserURL, emailsURL: cfg.EmailsURL}
	opts = append([]oauth.Option{oauth.WithProfileFunc(fetcher.fetch)}, opts...)
	return oauth.New(cfg.Config, verify, opts...)
}

// Factory builds the GitHub strategy from registry options.
func Factory(options bridge.Options, verify bridge.VerifyFunc) (bridge.Strategy, error) {
	var cfg Config
	if err := oauth.Decode(options, &cfg); err != nil {
		return nil, err
	}
	s, err := New(cfg, verify)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type profileFetcher struct {
	strategy  string
	userURL   string
	emailsURL string
}

func (f *profileFetcher) fetch(ctx context.Context, client *http.Client, token *oauth2.Token) (*bridge.Profile, error) {
	var user githubUser
	if err := oauth.GetJSON(ctx, client, f.strategy, "user_info", f.userURL, &user); err != nil {
		return nil, err
	}

	// the emails endpoint needs the user:email scope, fall back to the public
	// profile address when it is not granted
	var emails []githubEmail
	if err := oauth.GetJSON(ctx, client, f.strategy, "emails", f.emailsURL, &emails); err != nil {
		emails = nil
	}

	return mapProfile(&user, emails), nil
}
