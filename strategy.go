package bridge

import (
	"context"
)

// OptionCallbackURL is the option key carrying the callback URL handed to a
// strategy constructor.
const OptionCallbackURL = "callbackURL"

// ProbeCallbackURL is the placeholder callback used to build a throwaway
// instance when a spec does not name its strategy.
const ProbeCallbackURL = "https://dummy/test"

// Options are the constructor options of a strategy.
type Options map[string]any

func (o Options) clone() Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// AuthenticateOptions are extra authorization request parameters.
type AuthenticateOptions struct {
	Scopes []string          `yaml:"scopes" json:"scopes,omitempty" mapstructure:"scopes"`
	Prompt string            `yaml:"prompt" json:"prompt,omitempty" mapstructure:"prompt"`
	Params map[string]string `yaml:"params" json:"params,omitempty" mapstructure:"params"`
}

// Merge returns o with the non empty values of other applied on top.
func (o AuthenticateOptions) Merge(other AuthenticateOptions) AuthenticateOptions {
	out := o
	if len(other.Scopes) > 0 {
		out.Scopes = append([]string(nil), other.Scopes...)
	}
	if other.Prompt != "" {
		out.Prompt = other.Prompt
	}
	if len(other.Params) > 0 {
		params := make(map[string]string, len(o.Params)+len(other.Params))
		for k, v := range o.Params {
			params[k] = v
		}
		for k, v := range other.Params {
			params[k] = v
		}
		out.Params = params
	}
	return out
}

// AuthorizeParams configure the provider redirect.
type AuthorizeParams struct {
	AuthenticateOptions
	CodeChallenge       string
	CodeChallengeMethod string
}

// CallbackParams carry what the provider sent back.
type CallbackParams struct {
	Code         string
	CodeVerifier string
}

// VerifyFunc maps an authenticated provider profile to a local user. A
// strategy calls it once per successful callback.
type VerifyFunc func(ctx context.Context, tokens *Tokens, profile *Profile) (*User, error)

// Strategy is a provider integration. Authenticate runs the code exchange,
// fetches the profile and hands both to the bound VerifyFunc.
type Strategy interface {
	Name() string
	AuthorizeURL(state string, params AuthorizeParams) string
	Authenticate(ctx context.Context, params CallbackParams) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// StrategyFactory builds a strategy from its options and verify callback.
type StrategyFactory func(options Options, verify VerifyFunc) (Strategy, error)

// MatchPolicy selects how a profile is matched to a local user.
type MatchPolicy string

const (
	MatchID       MatchPolicy = "id"
	MatchUsername MatchPolicy = "username"
	MatchEmail    MatchPolicy = "email"
	MatchEmails   MatchPolicy = "emails"
)

// MatchFunc builds custom lookup criteria for a profile.
type MatchFunc func(profile *Profile) (Criteria, error)

// StrategySpec is the configuration record of one strategy.
type StrategySpec struct {
	Name        string
	Label       string
	Module      string
	Factory     StrategyFactory
	Options     Options
	Match       MatchPolicy
	MatchFunc   MatchFunc
	EmailDomain string
	Accept      func(profile *Profile) bool
	Import      func(profile *Profile, user *User)
	CallbackURL string

	AuthenticateOptions AuthenticateOptions
}

// IdentityCriteria matches users linked to a provider subject.
type IdentityCriteria struct {
	Strategy string
	Subject  string
}

// Criteria is a user lookup. All set conditions must hold, Emails matches any
// of the listed addresses. Fields compares plain user columns for equality.
type Criteria struct {
	Identity        *IdentityCriteria
	Username        string
	Emails          []string
	Fields          map[string]any
	ExcludeDisabled bool
}

// IsZero reports whether the criteria would match every user.
func (c Criteria) IsZero() bool {
	return c.Identity == nil && c.Username == "" && len(c.Emails) == 0 && len(c.Fields) == 0
}
