// Package oauth implements a generic OAuth 2.0 authorization code strategy
// on top of golang.org/x/oauth2. Provider specific packages reuse it and
// only supply endpoints and a profile fetcher.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	bridge "github.com/goliatone/go-auth-bridge"
	"golang.org/x/oauth2"
)

// Module is the registry key of the generic strategy.
const Module = "oauth2"

// Config holds the constructor options of a strategy. Field tags match the
// keys of a strategy's options block.
type Config struct {
	Name         string   `mapstructure:"name"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	CallbackURL  string   `mapstructure:"callbackURL"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url"`
	Scopes       []string `mapstructure:"scopes"`
	// AuthStyle is "header", "params" or empty for autodetection.
	AuthStyle string `mapstructure:"auth_style"`
}

// DecodeConfig reads a Config from strategy options.
func DecodeConfig(options bridge.Options) (Config, error) {
	var cfg Config
	err := Decode(options, &cfg)
	return cfg, err
}

// Decode reads strategy options into out using mapstructure tags. Scalars
// are converted loosely since options often come from YAML or env.
func Decode(options bridge.Options, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]any(options)); err != nil {
		return fmt.Errorf("invalid strategy options: %w", err)
	}
	return nil
}

// ProfileFunc fetches the profile of the token owner. client already
// carries the bearer token.
type ProfileFunc func(ctx context.Context, client *http.Client, token *oauth2.Token) (*bridge.Profile, error)

// Strategy is a bridge.Strategy for any authorization code provider.
type Strategy struct {
	name       string
	config     *oauth2.Config
	httpClient *http.Client
	profile    ProfileFunc
	verify     bridge.VerifyFunc
}

var _ bridge.Strategy = (*Strategy)(nil)

type Option func(*Strategy)

// WithHTTPClient sets the client used for token and profile requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Strategy) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithProfileFunc replaces the userinfo based profile fetcher.
func WithProfileFunc(fn ProfileFunc) Option {
	return func(s *Strategy) {
		if fn != nil {
			s.profile = fn
		}
	}
}

// New creates a strategy. Name, client ID, callback URL and both endpoints
// are required. Without a userinfo URL a ProfileFunc must be provided.
func New(cfg Config, verify bridge.VerifyFunc, opts ...Option) (*Strategy, error) {
	if cfg.Name == "" {
		cfg.Name = Module
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client_id is required")
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("callbackURL is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("auth_url and token_url are required")
	}
	if verify == nil {
		return nil, errors.New("a verify callback is required")
	}

	s := &Strategy{
		name: cfg.Name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle(cfg.AuthStyle),
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		verify:     verify,
	}
	if cfg.UserInfoURL != "" {
		s.profile = UserInfoProfile(cfg.Name, cfg.UserInfoURL)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.profile == nil {
		return nil, errors.New("userinfo_url is required")
	}
	return s, nil
}

// Factory builds the generic strategy from registry options.
func Factory(options bridge.Options, verify bridge.VerifyFunc) (bridge.Strategy, error) {
	cfg, err := DecodeConfig(options)
	if err != nil {
		return nil, err
	}
	s, err := New(cfg, verify)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Strategy) Name() string {
	return s.name
}

// OAuth2Config exposes the underlying client configuration.
func (s *Strategy) OAuth2Config() *oauth2.Config {
	return s.config
}

// AuthorizeURL implements bridge.Strategy.
func (s *Strategy) AuthorizeURL(state string, params bridge.AuthorizeParams) string {
	opts := []oauth2.AuthCodeOption{}
	if len(params.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(params.Scopes, " ")))
	}
	if params.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", params.Prompt))
	}
	for k, v := range params.Params {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if params.CodeChallenge != "" {
		method := params.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", params.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}
	return s.config.AuthCodeURL(state, opts...)
}

// Authenticate implements bridge.Strategy.
func (s *Strategy) Authenticate(ctx context.Context, params bridge.CallbackParams) (*bridge.User, error) {
	token, err := s.Exchange(ctx, params)
	if err != nil {
		return nil, err
	}

	clientCtx := s.clientContext(ctx)
	profile, err := s.profile(clientCtx, s.config.Client(clientCtx, token), token)
	if err != nil {
		return nil, err
	}

	return s.verify(ctx, TokensFrom(token), profile)
}

// Exchange trades the authorization code for tokens.
func (s *Strategy) Exchange(ctx context.Context, params bridge.CallbackParams) (*oauth2.Token, error) {
	if params.Code == "" {
		return nil, &bridge.ProviderError{Strategy: s.name, Operation: "exchange", Code: "missing_code"}
	}

	opts := []oauth2.AuthCodeOption{}
	if params.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(params.CodeVerifier))
	}

	token, err := s.config.Exchange(s.clientContext(ctx), params.Code, opts...)
	if err != nil {
		return nil, ProviderError(s.name, "exchange", err)
	}
	return token, nil
}

// Refresh implements bridge.Strategy.
func (s *Strategy) Refresh(ctx context.Context, refreshToken string) (*bridge.Tokens, error) {
	if refreshToken == "" {
		return nil, &bridge.ProviderError{Strategy: s.name, Operation: "refresh", Code: "invalid_grant", Description: "no refresh token"}
	}

	source := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, ProviderError(s.name, "refresh", err)
	}
	return TokensFrom(token), nil
}

func (s *Strategy) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// TokensFrom converts an oauth2 token.
func TokensFrom(token *oauth2.Token) *bridge.Tokens {
	if token == nil {
		return nil
	}
	return &bridge.Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
}

// ProviderError normalizes an oauth2 error response.
func ProviderError(strategy, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	perr := &bridge.ProviderError{Strategy: strategy, Operation: operation, Err: err}

	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.Response != nil {
			perr.Status = retrieve.Response.StatusCode
		}
		perr.Code = retrieve.ErrorCode
		perr.Description = retrieve.ErrorDescription
		if retrieve.ErrorURI != "" {
			perr.Raw = map[string]any{"error_uri": retrieve.ErrorURI}
		}
	}
	return perr
}

// UserInfoProfile fetches a JSON profile and maps its standard claims.
func UserInfoProfile(strategy, userInfoURL string) ProfileFunc {
	return func(ctx context.Context, client *http.Client, token *oauth2.Token) (*bridge.Profile, error) {
		claims := map[string]any{}
		if err := GetJSON(ctx, client, strategy, "user_info", userInfoURL, &claims); err != nil {
			return nil, err
		}
		return ProfileFromClaims(claims), nil
	}
}

// GetJSON performs an authenticated GET and decodes the JSON body into out.
func GetJSON(ctx context.Context, client *http.Client, strategy, operation, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &bridge.ProviderError{Strategy: strategy, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &bridge.ProviderError{Strategy: strategy, Operation: operation, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &bridge.ProviderError{
			Strategy:    strategy,
			Operation:   operation,
			Status:      resp.StatusCode,
			Description: errorMessage(body),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &bridge.ProviderError{
			Strategy:    strategy,
			Operation:   operation,
			Status:      resp.StatusCode,
			Code:        "invalid_response",
			Description: "failed to decode response",
			Err:         err,
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Description != "":
			return payload.Description
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func authStyle(style string) oauth2.AuthStyle {
	switch strings.ToLower(style) {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}
