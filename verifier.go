package bridge

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type linkTargetKey struct{}

// WithLinkTarget marks ctx as a link mode callback for the given user id.
func WithLinkTarget(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, linkTargetKey{}, userID)
}

// LinkTargetFromContext returns the user a callback links to, if any.
func LinkTargetFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(linkTargetKey{}).(string)
	return id, ok && id != ""
}

// AccountVerifier is the verify callback handed to every strategy. It
// resolves or links the user and stores the provider tokens.
type AccountVerifier struct {
	resolver *ProfileResolver
	users    UserStore
	vault    VaultStore
	logger   Logger
	now      func() time.Time
}

func NewAccountVerifier(resolver *ProfileResolver, users UserStore, vault VaultStore) *AccountVerifier {
	return &AccountVerifier{
		resolver: resolver,
		users:    users,
		vault:    vault,
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (v *AccountVerifier) WithLogger(logger Logger) *AccountVerifier {
	v.logger = ensureLogger(logger)
	return v
}

// For returns the verify callback bound to spec. It has the VerifierFactory
// signature.
func (v *AccountVerifier) For(spec StrategySpec) VerifyFunc {
	return func(ctx context.Context, tokens *Tokens, profile *Profile) (*User, error) {
		var (
			user *User
			err  error
		)
		if target, ok := LinkTargetFromContext(ctx); ok {
			user, err = v.link(ctx, spec, target, profile)
		} else {
			user, err = v.resolver.Resolve(ctx, spec, profile)
		}
		if err != nil {
			return nil, err
		}

		if tokens != nil && v.vault != nil {
			now := v.now()
			record := &TokenRecord{
				UserID:       user.ID,
				Strategy:     spec.Name,
				AccessToken:  tokens.AccessToken,
				RefreshToken: tokens.RefreshToken,
				UpdatedAt:    &now,
			}
			if err := v.vault.PutTokens(ctx, record); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store provider tokens")
			}
		}

		return user, nil
	}
}

func (v *AccountVerifier) link(ctx context.Context, spec StrategySpec, userID string, profile *Profile) (*User, error) {
	if profile == nil || profile.ID == "" {
		return nil, reject(ReasonMissingID, map[string]any{"strategy": spec.Name})
	}

	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, rejectCause(ReasonLinkFailed, err, map[string]any{"strategy": spec.Name})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user to link")
	}
	if user.Disabled {
		return nil, reject(ReasonLinkFailed, map[string]any{"strategy": spec.Name})
	}

	if err := v.users.LinkIdentity(ctx, user.ID, spec.Name, profile.ID); err != nil {
		v.logger.Error("failed to link %q identity to user %s: %v", spec.Name, user.ID, err)
		return nil, rejectCause(ReasonLinkFailed, err, map[string]any{"strategy": spec.Name})
	}
	user.SetStrategyID(spec.Name, profile.ID)

	v.logger.Info("linked %q identity to user %s", spec.Name, user.ID)
	return user, nil
}
