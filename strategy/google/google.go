package google

import (
	"context"
	"maps"
	"net/http"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"golang.org/x/oauth2"
)

// Module is the registry key of the Google strategy.
const Module = "google"

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Config holds Google OAuth configuration.
type Config struct {
	oauth.Config `mapstructure:",squash"`

	// HostedDomain narrows the account chooser to a Workspace domain. It is a
	// hint only, use the strategy email_domain to enforce it.
	HostedDomain string `mapstructure:"hosted_domain"`

	// Online skips access_type=offline, Google then issues no refresh token.
	Online bool `mapstructure:"online"`
}

// Strategy is the generic OAuth strategy with the Google authorize
// parameters applied.
type Strategy struct {
	*oauth.Strategy
	params map[string]string
}

// New creates a Google strategy.
func New(cfg Config, verify bridge.VerifyFunc, opts ...oauth.Option) (*Strategy, error) {
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
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	fetcher := &profileFetcher{strategy: cfg.Name, userInfoURL: cfg.UserInfoURL}
	opts = append([]oauth.Option{oauth.WithProfileFunc(fetcher.fetch)}, opts...)

	base, err := oauth.New(cfg.Config, verify, opts...)
	if err != nil {
		return nil, err
	}

	params := map[string]string{}
	if !cfg.Online {
		params["access_type"] = "offline"
	}
	if cfg.HostedDomain != "" {
		params["hd"] = cfg.HostedDomain
	}

	return &Strategy{Strategy: base, params: params}, nil
}

// Factory builds the Google strategy from registry options.
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

// AuthorizeURL implements bridge.Strategy. Parameters configured on the
// strategy entry win over the Google defaults.
func (s *Strategy) AuthorizeURL(state string, params bridge.AuthorizeParams) string {
	merged := maps.Clone(s.params)
	maps.Copy(merged, params.Params)
	params.Params = merged
	return s.Strategy.AuthorizeURL(state, params)
}

type profileFetcher struct {
	strategy    string
	userInfoURL string
}

func (f *profileFetcher) fetch(ctx context.Context, client *http.Client, _ *oauth2.Token) (*bridge.Profile, error) {
	var info googleUserInfo
	if err := oauth.GetJSON(ctx, client, f.strategy, "user_info", f.userInfoURL, &info); err != nil {
		return nil, err
	}
	return mapProfile(&info), nil
}
