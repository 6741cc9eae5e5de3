package bridge

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// AccessAction is an API call made with a provider access token.
type AccessAction func(ctx context.Context, accessToken string) error

type accessState int

const (
	stateUseCurrent accessState = iota
	stateRefreshedRetry
	stateFailed
)

func (s accessState) String() string {
	switch s {
	case stateUseCurrent:
		return "use_current"
	case stateRefreshedRetry:
		return "refreshed_retry"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// CredentialVault stores provider tokens per user and strategy and runs API
// calls with transparent, bounded refresh.
type CredentialVault struct {
	store     VaultStore
	refresher Refresher
	serialize bool
	group     singleflight.Group
	logger    Logger
	now       func() time.Time
}

type VaultOption func(*CredentialVault)

// WithSerializedRefresh collapses concurrent refreshes of the same user and
// strategy into one provider call.
func WithSerializedRefresh(enabled bool) VaultOption {
	return func(v *CredentialVault) {
		v.serialize = enabled
	}
}

// WithVaultLogger sets the logger used by the vault.
func WithVaultLogger(logger Logger) VaultOption {
	return func(v *CredentialVault) {
		v.logger = ensureLogger(logger)
	}
}

func NewCredentialVault(store VaultStore, refresher Refresher, opts ...VaultOption) *CredentialVault {
	v := &CredentialVault{
		store:     store,
		refresher: refresher,
		logger:    defLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func validateVaultArgs(user *User, strategy string) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrVaultInvalidArgument.Clone().WithMetadata(map[string]any{"argument": "user"})
	}
	if strategy == "" {
		return ErrVaultInvalidArgument.Clone().WithMetadata(map[string]any{"argument": "strategy"})
	}
	return nil
}

// GetTokens returns the stored tokens, or nil when none were stored for the
// strategy. A user without a vault entry is a consistency error.
func (v *CredentialVault) GetTokens(ctx context.Context, user *User, strategy string) (*Tokens, error) {
	if err := validateVaultArgs(user, strategy); err != nil {
		return nil, err
	}

	ok, err := v.store.HasEntry(ctx, user.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read vault entry")
	}
	if !ok {
		return nil, ErrVaultEntryMissing.Clone().WithMetadata(map[string]any{
			"user_id":  user.ID.String(),
			"strategy": strategy,
		})
	}

	record, err := v.store.GetTokens(ctx, user.ID, strategy)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read vault tokens")
	}
	if record == nil {
		return nil, nil
	}

	return &Tokens{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
	}, nil
}

// UpdateTokens overwrites the stored tokens of the strategy.
func (v *CredentialVault) UpdateTokens(ctx context.Context, user *User, strategy string, tokens Tokens) error {
	if err := validateVaultArgs(user, strategy); err != nil {
		return err
	}

	now := v.now()
	err := v.store.PutTokens(ctx, &TokenRecord{
		UserID:       user.ID,
		Strategy:     strategy,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UpdatedAt:    &now,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write vault tokens")
	}
	return nil
}

// RefreshTokens exchanges the refresh token, the stored one when empty, and
// stores the result. A provider that does not rotate the refresh token keeps
// the prior one. Provider errors are returned unmodified.
func (v *CredentialVault) RefreshTokens(ctx context.Context, user *User, strategy, refreshToken string) (*Tokens, error) {
	if err := validateVaultArgs(user, strategy); err != nil {
		return nil, err
	}

	if refreshToken == "" {
		stored, err := v.GetTokens(ctx, user, strategy)
		if err != nil {
			return nil, err
		}
		if stored == nil || stored.RefreshToken == "" {
			return nil, ErrNoTokens.Clone().WithMetadata(map[string]any{
				"user_id":  user.ID.String(),
				"strategy": strategy,
			})
		}
		refreshToken = stored.RefreshToken
	}

	refresh := func() (*Tokens, error) {
		fresh, err := v.refresher.Refresh(ctx, strategy, refreshToken)
		if err != nil {
			return nil, err
		}

		next := Tokens{
			AccessToken:  fresh.AccessToken,
			RefreshToken: fresh.RefreshToken,
			TokenType:    fresh.TokenType,
			Expiry:       fresh.Expiry,
		}
		if next.RefreshToken == "" {
			next.RefreshToken = refreshToken
		}

		if err := v.UpdateTokens(ctx, user, strategy, next); err != nil {
			return nil, err
		}
		return &next, nil
	}

	if !v.serialize {
		return refresh()
	}

	key := user.ID.String() + ":" + strategy
	out, err, shared := v.group.Do(key, func() (any, error) {
		return refresh()
	})
	if shared {
		v.logger.Debug("shared token refresh for %s", key)
	}
	if err != nil {
		return nil, err
	}
	tokens := *out.(*Tokens)
	return &tokens, nil
}

// WithAccessToken runs action with the stored access token. If the action
// fails with an expired token error the tokens are refreshed once and the
// action retried once. Any other error is returned as is.
func (v *CredentialVault) WithAccessToken(ctx context.Context, user *User, strategy string, action AccessAction) error {
	_, err := WithAccessTokenResult(ctx, v, user, strategy, func(ctx context.Context, accessToken string) (struct{}, error) {
		return struct{}{}, action(ctx, accessToken)
	})
	return err
}

// WithAccessTokenResult is WithAccessToken for actions that return a value.
func WithAccessTokenResult[T any](ctx context.Context, v *CredentialVault, user *User, strategy string, action func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var zero T

	tokens, err := v.GetTokens(ctx, user, strategy)
	if err != nil {
		return zero, err
	}
	if tokens == nil {
		return zero, ErrNoTokens.Clone().WithMetadata(map[string]any{
			"user_id":  user.ID.String(),
			"strategy": strategy,
		})
	}

	accessToken := tokens.AccessToken
	state := stateUseCurrent
	var lastErr error

	for {
		switch state {
		case stateUseCurrent:
			out, err := action(ctx, accessToken)
			if err == nil {
				return out, nil
			}
			if !IsExpiredTokenError(err) {
				return zero, err
			}

			v.logger.Debug("access token for %q expired, refreshing", strategy)
			refreshed, rerr := v.RefreshTokens(ctx, user, strategy, tokens.RefreshToken)
			if rerr != nil {
				return zero, rerr
			}
			accessToken = refreshed.AccessToken
			state = stateRefreshedRetry

		case stateRefreshedRetry:
			out, err := action(ctx, accessToken)
			if err == nil {
				return out, nil
			}
			lastErr = err
			state = stateFailed

		case stateFailed:
			v.logger.Debug("access token call for %q failed after refresh: %v", strategy, lastErr)
			return zero, lastErr
		}
	}
}
