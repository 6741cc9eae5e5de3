package bridge

import (
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Session is the browser session the bridge reads and writes. It travels in
// a cookie encoded by a SessionCodec.
type Session struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id,omitempty"`
	Strategy        string                `json:"strategy,omitempty"`
	Redirect        string                `json:"redirect,omitempty"`
	LocaleHandoff   *PendingLocaleHandoff `json:"localeHandoff,omitempty"`
	AuthenticatedAt *time.Time            `json:"authenticated_at,omitempty"`
	Data            map[string]any        `json:"data,omitempty"`
}

// NewSession returns an anonymous session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != ""
}

// Login binds the session to user. The session id is rotated.
func (s *Session) Login(user *User, strategy string, now time.Time) {
	s.ID = uuid.NewString()
	s.UserID = user.ID.String()
	s.Strategy = strategy
	s.AuthenticatedAt = &now
}

// TakeRedirect returns and clears the stored post login destination.
func (s *Session) TakeRedirect(def string) string {
	rd := s.Redirect
	s.Redirect = ""
	if rd == "" {
		return def
	}
	return rd
}

// TakeLocaleHandoff returns and clears the pending locale handoff.
func (s *Session) TakeLocaleHandoff() *PendingLocaleHandoff {
	pending := s.LocaleHandoff
	s.LocaleHandoff = nil
	return pending
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.LocaleHandoff != nil {
		h := *s.LocaleHandoff
		out.LocaleHandoff = &h
	}
	if s.Data != nil {
		out.Data = make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			out.Data[k] = v
		}
	}
	return &out
}

// SessionStore loads and saves sessions on a request.
type SessionStore interface {
	Load(ctx router.Context) (*Session, error)
	Save(ctx router.Context, sess *Session) error
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Secure   bool
	SameSite string
	TTL      time.Duration
}

// CookieSessionStore keeps the whole session in a single cookie.
type CookieSessionStore struct {
	codec  SessionCodec
	cookie CookieConfig
	logger Logger
}

func NewCookieSessionStore(codec SessionCodec, cookie CookieConfig) *CookieSessionStore {
	if cookie.Name == "" {
		cookie.Name = "bridge_session"
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if cookie.SameSite == "" {
		cookie.SameSite = "Lax"
	}
	if cookie.TTL == 0 {
		cookie.TTL = 24 * time.Hour
	}
	return &CookieSessionStore{
		codec:  codec,
		cookie: cookie,
		logger: defLogger{},
	}
}

func (s *CookieSessionStore) WithLogger(logger Logger) *CookieSessionStore {
	s.logger = ensureLogger(logger)
	return s
}

// Load decodes the session cookie. A missing or unreadable cookie yields a
// new anonymous session.
func (s *CookieSessionStore) Load(ctx router.Context) (*Session, error) {
	raw := ctx.Cookies(s.cookie.Name)
	if raw == "" {
		return NewSession(), nil
	}

	sess, err := s.codec.Decode(raw)
	if err != nil {
		s.logger.Debug("discarding unreadable session cookie: %v", err)
		return NewSession(), nil
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	return sess, nil
}

func (s *CookieSessionStore) Save(ctx router.Context, sess *Session) error {
	value, err := s.codec.Encode(sess)
	if err != nil {
		return err
	}

	ctx.Cookie(&router.Cookie{
		Name:     s.cookie.Name,
		Value:    value,
		Path:     s.cookie.Path,
		Expires:  time.Now().Add(s.cookie.TTL),
		HTTPOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	})
	return nil
}
