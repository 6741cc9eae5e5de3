package bridge

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeConfig            = "bridge_config"
	TextCodeRejected          = "bridge_rejected"
	TextCodeStrategyNotFound  = "bridge_strategy_not_found"
	TextCodeInvalidState      = "bridge_invalid_state"
	TextCodeStateExpired      = "bridge_state_expired"
	TextCodeVaultArgument     = "bridge_vault_invalid_argument"
	TextCodeVaultInconsistent = "bridge_vault_inconsistent"
	TextCodeNoTokens          = "bridge_no_tokens"
	TextCodeHandoffInvalid    = "bridge_handoff_invalid"
	TextCodeConnectionInvalid = "bridge_connection_invalid"
)

// Rejection reasons, stored under the "reason" metadata key.
const (
	ReasonNotAccepted        = "not_accepted"
	ReasonEmailDomain        = "email_domain"
	ReasonMissingID          = "missing_id"
	ReasonMissingUsername    = "missing_username"
	ReasonMissingEmail       = "missing_email"
	ReasonEmptyCriteria      = "empty_criteria"
	ReasonNoMatch            = "no_match"
	ReasonProvisioningFailed = "provisioning_failed"
	ReasonProviderDenied     = "provider_denied"
	ReasonInvalidCallback    = "invalid_callback"
	ReasonInvalidState       = "invalid_state"
	ReasonLinkFailed         = "link_failed"
	ReasonConnectionInvalid  = "connection_invalid"
)

// ErrRejected is the base of every policy rejection.
var ErrRejected = goerrors.New("authentication rejected", goerrors.CategoryAuth).
	WithTextCode(TextCodeRejected).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnsupportedMatch is returned at registration or resolution time for an
// unknown match policy.
var ErrUnsupportedMatch = goerrors.New("unsupported match policy", goerrors.CategoryBadInput).
	WithTextCode(TextCodeConfig).
	WithCode(goerrors.CodeBadRequest)

// ErrStrategyNotFound is returned when a name is not registered.
var ErrStrategyNotFound = goerrors.New("strategy not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeStrategyNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = goerrors.New("invalid oauth state", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(goerrors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = goerrors.New("oauth state expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrVaultInvalidArgument is returned for a missing user or strategy name.
var ErrVaultInvalidArgument = goerrors.New("vault requires a user and a strategy name", goerrors.CategoryValidation).
	WithTextCode(TextCodeVaultArgument).
	WithCode(goerrors.CodeBadRequest)

// ErrVaultEntryMissing is returned when a user never completed the bridge
// login flow and therefore has no vault entry.
var ErrVaultEntryMissing = goerrors.New("user has no vault entry", goerrors.CategoryInternal).
	WithTextCode(TextCodeVaultInconsistent).
	WithCode(http.StatusInternalServerError)

// ErrNoTokens is returned when there is nothing to call or refresh with.
var ErrNoTokens = goerrors.New("no stored tokens for strategy", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoTokens).
	WithCode(goerrors.CodeUnauthorized)

// ErrHandoffInvalid is returned for unknown, expired or consumed handoff tokens.
var ErrHandoffInvalid = goerrors.New("invalid handoff token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeHandoffInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrConnectionInvalid is returned for unknown, expired or consumed
// connection tokens.
var ErrConnectionInvalid = goerrors.New("invalid connection token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeConnectionInvalid).
	WithCode(goerrors.CodeBadRequest)

func reject(reason string, meta ...map[string]any) *goerrors.Error {
	return withMeta(ErrRejected, nil, reason, meta...)
}

func rejectCause(reason string, cause error, meta ...map[string]any) *goerrors.Error {
	return withMeta(ErrRejected, cause, reason, meta...)
}

func withMeta(base *goerrors.Error, cause error, reason string, extra ...map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if cause != nil {
		clone.Source = cause
	}

	meta := map[string]any{}
	if reason != "" {
		meta["reason"] = reason
	}
	for _, m := range extra {
		for k, v := range m {
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

func configError(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryBadInput).
		WithTextCode(TextCodeConfig).
		WithCode(goerrors.CodeBadRequest)
}

// IsConfigError reports whether err is a startup configuration error.
func IsConfigError(err error) bool {
	return hasTextCode(err, TextCodeConfig)
}

// IsRejection reports whether err is a policy rejection that should end on
// the generic failure page.
func IsRejection(err error) bool {
	return hasTextCode(err, TextCodeRejected)
}

// RejectionReason returns the reason recorded on a rejection.
func RejectionReason(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != TextCodeRejected {
		return ""
	}
	reason, _ := richErr.Metadata["reason"].(string)
	return reason
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// StatusCoder is implemented by errors carrying an upstream HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsExpiredTokenError reports whether err means the access token was
// refused because it expired or was revoked upstream.
func IsExpiredTokenError(err error) bool {
	if err == nil {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		return perr.Status == http.StatusUnauthorized || perr.Code == "invalid_token"
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode() == http.StatusUnauthorized
	}

	return false
}

// NeedsReauthentication reports whether the user must run the login flow
// again for the strategy, as opposed to a transient provider outage.
func NeedsReauthentication(err error) bool {
	if err == nil {
		return false
	}

	if hasTextCode(err, TextCodeNoTokens) {
		return true
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		switch perr.Code {
		case "invalid_grant", "invalid_token", "unauthorized_client", "interaction_required", "login_required", "consent_required":
			return true
		}
		return perr.Status == http.StatusUnauthorized
	}

	return false
}
