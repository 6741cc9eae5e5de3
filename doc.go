// Package bridge connects a local user directory to external OAuth2 and
// OpenID Connect providers.
//
// Strategies:
//   - A Registry is built once from a list of StrategySpec values. Each spec
//     names a StrategyFactory (directly or through a module key) and the
//     registry fixes the login, callback and failure URLs of every strategy
//     before the live instance is constructed. The registry is read only
//     after construction and safe for concurrent use.
//
// Resolution:
//   - ProfileResolver turns a provider profile into a local user following
//     the strategy's match policy (id, username, email, emails or a custom
//     MatchFunc). Disabled users never match. When nothing matches and a
//     UserProvisioner is configured a new user is created from the profile.
//   - Policy failures are rejections: go-errors values with the
//     bridge_rejected text code. The HTTP layer sends them to the generic
//     failure page. Anything else is an infrastructure error.
//
// Credentials:
//   - CredentialVault stores provider tokens per user and strategy and wraps
//     API calls with WithAccessToken, which refreshes at most once when the
//     provider reports an expired token.
//
// Locale handoff:
//   - A login that starts with oldLocale/newLocale query parameters hands the
//     fresh session over to the new locale's host through a single use token
//     kept in a HandoffCache for one hour.
package bridge
