package bridge

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"golang.org/x/oauth2"
)

// QueryRedirect is the login parameter naming the post login destination.
const QueryRedirect = "redirect"

// FlowState names the steps of a login flow in logs.
type FlowState string

const (
	FlowInitiated        FlowState = "initiated"
	FlowProviderRedirect FlowState = "provider_redirect"
	FlowProviderCallback FlowState = "provider_callback"
	FlowResolved         FlowState = "resolved"
	FlowRejected         FlowState = "rejected"
	FlowLocaleHandoff    FlowState = "locale_handoff"
	FlowTerminal         FlowState = "terminal"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// ErrorView is the template rendered by the failure route (default: "bridge/error")
	ErrorView string

	// RejectedMessage is the only message shown on the failure page
	RejectedMessage string

	// SuccessRedirect is the default redirect after a successful login (default: "/")
	SuccessRedirect string

	// ErrorHandler handles provider and infrastructure errors (optional).
	// Without it the error is returned to the router.
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController serves the login, callback, failure and connection routes
// of every registered strategy.
type HTTPController struct {
	registry    *Registry
	sessions    SessionStore
	states      StateManager
	handoff     *LocaleHandoff
	connections *RequestConnectionHandler
	config      HTTPConfig
	logger      Logger
	now         func() time.Time
}

type ControllerOption func(*HTTPController)

// WithLocaleHandoff enables the cross locale handoff.
func WithLocaleHandoff(h *LocaleHandoff) ControllerOption {
	return func(c *HTTPController) {
		c.handoff = h
	}
}

// WithConnections enables the connection routes.
func WithConnections(h *RequestConnectionHandler) ControllerOption {
	return func(c *HTTPController) {
		c.connections = h
	}
}

// WithControllerLogger sets the logger used by the controller.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *HTTPController) {
		c.logger = ensureLogger(logger)
	}
}

func NewHTTPController(registry *Registry, sessions SessionStore, states StateManager, cfg HTTPConfig, opts ...ControllerOption) *HTTPController {
	if cfg.ErrorView == "" {
		cfg.ErrorView = "bridge/error"
	}
	if cfg.RejectedMessage == "" {
		cfg.RejectedMessage = "Your sign in was not accepted. Please contact an administrator if you believe this is a mistake."
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}

	c := &HTTPController{
		registry: registry,
		sessions: sessions,
		states:   states,
		config:   cfg,
		logger:   defLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes registers the routes of every strategy, relative to the
// site prefix.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	for _, entry := range c.registry.Strategies() {
		name := entry.Spec.Name
		group.Get(c.registry.LoginURL(name, false), c.Login(entry))
		group.Get(c.registry.CallbackURL(name, false), c.Callback(entry))
		group.Get(c.registry.FailureURL(name, false), c.Failure(entry))
		if c.connections != nil {
			group.Post(c.registry.ConnectURL(name, false), c.RequestConnection(entry))
			group.Get(c.registry.ConnectURL(name, false), c.ConfirmConnection(entry))
		}
	}
}

func (c *HTTPController) flow(entry *RegisteredStrategy, state FlowState, format string, args ...any) {
	c.logger.Debug("[%s:%s] "+format, append([]any{entry.Spec.Name, state}, args...)...)
}

// Login starts a login. A request carrying newLocale stages the locale
// handoff and redirects to the bare login URL first.
func (c *HTTPController) Login(entry *RegisteredStrategy) router.HandlerFunc {
	return func(ctx router.Context) error {
		sess, err := CurrentSession(ctx, c.sessions)
		if err != nil {
			return c.handleError(ctx, err)
		}
		c.flow(entry, FlowInitiated, "login requested")

		redirect := safeRedirect(ctx.Query(QueryRedirect))

		if c.handoff != nil && c.handoff.Stage(sess, ctx.Query(QueryOldLocale), ctx.Query(QueryNewLocale), ctx.Query(QueryOldDocumentID)) {
			if err := c.sessions.Save(ctx, sess); err != nil {
				return c.handleError(ctx, err)
			}
			target := c.registry.LoginURL(entry.Spec.Name, true)
			if redirect != "" {
				target = appendQueryParam(target, QueryRedirect, redirect)
			}
			return ctx.Redirect(target, http.StatusTemporaryRedirect)
		}

		if redirect != "" {
			sess.Redirect = redirect
		}

		return c.beginProvider(ctx, entry, sess, &OAuthState{Action: ActionLogin}, entry.Spec.AuthenticateOptions)
	}
}

func (c *HTTPController) beginProvider(ctx router.Context, entry *RegisteredStrategy, sess *Session, state *OAuthState, opts AuthenticateOptions) error {
	verifier := oauth2.GenerateVerifier()
	state.Strategy = entry.Spec.Name
	state.CodeVerifier = verifier

	token, err := c.states.Encode(state)
	if err != nil {
		return c.handleError(ctx, err)
	}

	if err := c.sessions.Save(ctx, sess); err != nil {
		return c.handleError(ctx, err)
	}

	target := entry.Strategy.AuthorizeURL(token, AuthorizeParams{
		AuthenticateOptions: opts,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: "S256",
	})

	c.flow(entry, FlowProviderRedirect, "redirecting to provider")
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

// Callback completes a login or a link.
func (c *HTTPController) Callback(entry *RegisteredStrategy) router.HandlerFunc {
	return func(ctx router.Context) error {
		c.flow(entry, FlowProviderCallback, "callback received")

		if errCode := ctx.Query("error"); errCode != "" {
			return c.reject(ctx, entry, reject(ReasonProviderDenied, map[string]any{
				"strategy":          entry.Spec.Name,
				"error":             errCode,
				"error_description": ctx.Query("error_description"),
			}))
		}

		code, rawState := ctx.Query("code"), ctx.Query("state")
		if code == "" || rawState == "" {
			return c.reject(ctx, entry, reject(ReasonInvalidCallback, map[string]any{"strategy": entry.Spec.Name}))
		}

		state, err := c.states.Decode(rawState)
		if err != nil {
			return c.reject(ctx, entry, rejectCause(ReasonInvalidState, err, map[string]any{"strategy": entry.Spec.Name}))
		}
		if state.Strategy != entry.Spec.Name {
			return c.reject(ctx, entry, reject(ReasonInvalidState, map[string]any{"strategy": entry.Spec.Name}))
		}

		sess, err := CurrentSession(ctx, c.sessions)
		if err != nil {
			return c.handleError(ctx, err)
		}

		authCtx := ctx.Context()
		if state.Action == ActionLink {
			authCtx = WithLinkTarget(authCtx, state.LinkUserID)
		}

		user, err := entry.Strategy.Authenticate(authCtx, CallbackParams{
			Code:         code,
			CodeVerifier: state.CodeVerifier,
		})
		if err != nil {
			if IsRejection(err) {
				return c.reject(ctx, entry, err)
			}
			return c.handleError(ctx, err)
		}
		if user == nil {
			return c.reject(ctx, entry, reject(ReasonNoMatch, map[string]any{"strategy": entry.Spec.Name}))
		}

		if state.Action == ActionLink {
			c.flow(entry, FlowTerminal, "linked identity to user %s", user.ID)
			target := state.RedirectURL
			if target == "" {
				target = c.config.SuccessRedirect
			}
			return ctx.Redirect(target, http.StatusTemporaryRedirect)
		}

		c.flow(entry, FlowResolved, "resolved user %s", user.ID)
		sess.Login(user, entry.Spec.Name, c.now())
		target := sess.TakeRedirect(c.config.SuccessRedirect)

		if c.handoff != nil {
			handoffTarget, ok, err := c.handoff.Finalize(ctx.Context(), sess)
			if err != nil {
				c.logger.Error("locale handoff failed for user %s: %v", user.ID, err)
			} else if ok {
				c.flow(entry, FlowLocaleHandoff, "handing off to %s", handoffTarget)
				target = handoffTarget
			}
		}

		if err := c.sessions.Save(ctx, sess); err != nil {
			return c.handleError(ctx, err)
		}

		c.flow(entry, FlowTerminal, "login complete")
		return ctx.Redirect(target, http.StatusTemporaryRedirect)
	}
}

// Failure renders the generic rejection page.
func (c *HTTPController) Failure(entry *RegisteredStrategy) router.HandlerFunc {
	return func(ctx router.Context) error {
		return ctx.Render(c.config.ErrorView, router.ViewContext{
			"strategy": map[string]any{
				"name":  entry.Spec.Name,
				"label": entry.Spec.Label,
			},
			"message":   c.config.RejectedMessage,
			"login_url": c.registry.LoginURL(entry.Spec.Name, true),
		})
	}
}

// RequestConnection sends a connection link to the signed in user.
func (c *HTTPController) RequestConnection(entry *RegisteredStrategy) router.HandlerFunc {
	return func(ctx router.Context) error {
		sess, err := CurrentSession(ctx, c.sessions)
		if err != nil {
			return c.handleError(ctx, err)
		}
		if !sess.IsAuthenticated() {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": "authentication required",
			})
		}

		opts := entry.Spec.AuthenticateOptions
		if scopes := ctx.Query("scopes"); scopes != "" {
			opts.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
		}
		if prompt := ctx.Query("prompt"); prompt != "" {
			opts.Prompt = prompt
		}

		var response *RequestConnectionResponse
		err = c.connections.Execute(ctx.Context(), RequestConnectionMessage{
			UserID:   sess.UserID,
			Strategy: entry.Spec.Name,
			Options:  opts,
			OnResponse: func(r *RequestConnectionResponse) {
				response = r
			},
		})
		if err != nil {
			return c.handleError(ctx, err)
		}

		return ctx.JSON(router.StatusOK, map[string]any{
			"status":     "sent",
			"strategy":   response.Strategy,
			"expires_at": response.ExpiresAt,
		})
	}
}

// ConfirmConnection redeems a connection link and starts the provider flow
// in link mode. The current session is not changed by the link.
func (c *HTTPController) ConfirmConnection(entry *RegisteredStrategy) router.HandlerFunc {
	return func(ctx router.Context) error {
		request, opts, err := c.connections.Confirm(ctx.Context(), entry.Spec.Name, ctx.Query("token"))
		if err != nil {
			if hasTextCode(err, TextCodeConnectionInvalid) {
				return c.reject(ctx, entry, rejectCause(ReasonConnectionInvalid, err, map[string]any{"strategy": entry.Spec.Name}))
			}
			return c.handleError(ctx, err)
		}

		sess, err := CurrentSession(ctx, c.sessions)
		if err != nil {
			return c.handleError(ctx, err)
		}

		state := &OAuthState{
			Action:      ActionLink,
			LinkUserID:  request.UserID.String(),
			RedirectURL: c.config.SuccessRedirect,
		}
		return c.beginProvider(ctx, entry, sess, state, entry.Spec.AuthenticateOptions.Merge(opts))
	}
}

// ResumeHandoff redeems a handoffToken query parameter into a session. An
// invalid token leaves the request anonymous.
func (c *HTTPController) ResumeHandoff() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token := ctx.Query(QueryHandoffToken)
			if token == "" || c.handoff == nil {
				return next(ctx)
			}

			sess, err := c.handoff.Resume(ctx.Context(), token)
			if err != nil {
				c.logger.Info("ignoring handoff token: %v", err)
				return next(ctx)
			}

			sess.ID = NewSession().ID
			if err := c.sessions.Save(ctx, sess); err != nil {
				return c.handleError(ctx, err)
			}
			WithRouterSession(ctx, sess)
			return next(ctx)
		}
	}
}

func (c *HTTPController) reject(ctx router.Context, entry *RegisteredStrategy, err error) error {
	c.flow(entry, FlowRejected, "rejected: %s", RejectionReason(err))
	c.logger.Info("authentication rejected for strategy %q: %v", entry.Spec.Name, err)
	return ctx.Redirect(c.registry.FailureURL(entry.Spec.Name, true), http.StatusTemporaryRedirect)
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	c.logger.Error("authentication flow failed: %v details=%s", err, print.MaybePrettyJSON(errorDetails(err)))
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}
	return err
}

func errorDetails(err error) map[string]any {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Metadata()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Metadata
	}
	return nil
}

// safeRedirect keeps local absolute paths only.
func safeRedirect(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return raw
}
