package bridge

import (
	"github.com/goliatone/go-router"
)

// LocalsSessionKey is the router locals key holding a session established
// during the current request.
const LocalsSessionKey = "bridge_session"

// WithRouterSession exposes sess to the handlers that run after the current
// one. The cookie set by SessionStore.Save is only visible on the next
// request.
func WithRouterSession(ctx router.Context, sess *Session) {
	ctx.Locals(LocalsSessionKey, sess)
}

// RouterSession returns the session stored by WithRouterSession.
func RouterSession(ctx router.Context) (*Session, bool) {
	sess, ok := ctx.Locals(LocalsSessionKey).(*Session)
	return sess, ok && sess != nil
}

// CurrentSession prefers a session established in this request over the one
// carried by the request cookie.
func CurrentSession(ctx router.Context, store SessionStore) (*Session, error) {
	if sess, ok := RouterSession(ctx); ok {
		return sess.Clone(), nil
	}
	return store.Load(ctx)
}
