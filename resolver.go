package bridge

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// ProfileResolver maps provider profiles to local users.
type ProfileResolver struct {
	users       UserStore
	provisioner *UserProvisioner
	logger      Logger
}

type ResolverOption func(*ProfileResolver)

// WithProvisioner enables user creation when no user matches.
func WithProvisioner(p *UserProvisioner) ResolverOption {
	return func(r *ProfileResolver) {
		r.provisioner = p
	}
}

// WithResolverLogger sets the logger used by the resolver.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *ProfileResolver) {
		r.logger = ensureLogger(logger)
	}
}

func NewProfileResolver(users UserStore, opts ...ResolverOption) *ProfileResolver {
	r := &ProfileResolver{
		users:  users,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve finds the local user for a profile, creating one when allowed.
// Policy failures are returned as rejections.
func (r *ProfileResolver) Resolve(ctx context.Context, spec StrategySpec, profile *Profile) (*User, error) {
	if profile == nil {
		return nil, reject(ReasonMissingID, map[string]any{"strategy": spec.Name})
	}

	if spec.Accept != nil && !spec.Accept(profile) {
		return nil, reject(ReasonNotAccepted, map[string]any{"strategy": spec.Name})
	}

	emails := ExtractEmails(spec, profile)
	if spec.EmailDomain != "" && len(emails) == 0 {
		return nil, reject(ReasonEmailDomain, map[string]any{
			"strategy":     spec.Name,
			"email_domain": spec.EmailDomain,
		})
	}

	criteria, err := BuildCriteria(spec, profile, emails)
	if err != nil {
		return nil, err
	}
	criteria.ExcludeDisabled = true

	user, err := r.users.FindOne(ctx, criteria)
	if err == nil && user != nil {
		return user, nil
	}
	if err != nil && !isNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}

	if r.provisioner == nil {
		r.logger.Debug("no user matched profile %q of strategy %q and creation is disabled", profile.ID, spec.Name)
		return nil, reject(ReasonNoMatch, map[string]any{"strategy": spec.Name})
	}

	return r.provisioner.Provision(ctx, spec, profile)
}

// BuildCriteria returns the lookup for a profile under the strategy's match
// policy. The default policy is username.
func BuildCriteria(spec StrategySpec, profile *Profile, emails []string) (Criteria, error) {
	if spec.MatchFunc != nil {
		criteria, err := spec.MatchFunc(profile)
		if err != nil {
			return Criteria{}, err
		}
		if criteria.IsZero() {
			return Criteria{}, reject(ReasonEmptyCriteria, map[string]any{"strategy": spec.Name})
		}
		return criteria, nil
	}

	switch spec.Match {
	case MatchID:
		if profile.ID == "" {
			return Criteria{}, reject(ReasonMissingID, map[string]any{"strategy": spec.Name})
		}
		return Criteria{Identity: &IdentityCriteria{Strategy: spec.Name, Subject: profile.ID}}, nil
	case MatchUsername, "":
		if profile.Username == "" {
			return Criteria{}, reject(ReasonMissingUsername, map[string]any{"strategy": spec.Name})
		}
		return Criteria{Username: profile.Username}, nil
	case MatchEmail, MatchEmails:
		if len(emails) == 0 {
			return Criteria{}, reject(ReasonMissingEmail, map[string]any{"strategy": spec.Name})
		}
		return Criteria{Emails: append([]string(nil), emails...)}, nil
	}

	return Criteria{}, ErrUnsupportedMatch.Clone().WithMetadata(map[string]any{
		"match":    string(spec.Match),
		"strategy": spec.Name,
	})
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
