package bridge

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

// SessionCodec turns sessions into cookie values and back.
type SessionCodec interface {
	Encode(sess *Session) (string, error)
	Decode(raw string) (*Session, error)
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Session *Session `json:"ses"`
}

// JWTSessionCodec signs sessions as HS256 JWTs.
type JWTSessionCodec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTSessionCodec(key []byte, issuer string, ttl time.Duration) (*JWTSessionCodec, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("session signing key must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionCodec{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (c *JWTSessionCodec) Encode(sess *Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("session is required")
	}

	now := c.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Session: sess,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

func (c *JWTSessionCodec) Decode(raw string) (*Session, error) {
	claims := &sessionClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Session == nil {
		return nil, fmt.Errorf("session claim missing")
	}
	return claims.Session, nil
}

// SecureCookieCodec encrypts and authenticates sessions with
// gorilla/securecookie.
type SecureCookieCodec struct {
	name string
	sc   *securecookie.SecureCookie
}

// NewSecureCookieCodec builds a codec. hashKey authenticates the value,
// blockKey (16, 24 or 32 bytes, optional) encrypts it.
func NewSecureCookieCodec(name string, hashKey, blockKey []byte, ttl time.Duration) (*SecureCookieCodec, error) {
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("session hash key must be at least 32 bytes")
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("session encryption key must be 16, 24 or 32 bytes")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	if ttl > 0 {
		sc.MaxAge(int(ttl.Seconds()))
	}

	return &SecureCookieCodec{name: name, sc: sc}, nil
}

func (c *SecureCookieCodec) Encode(sess *Session) (string, error) {
	return c.sc.Encode(c.name, sess)
}

func (c *SecureCookieCodec) Decode(raw string) (*Session, error) {
	sess := &Session{}
	if err := c.sc.Decode(c.name, raw, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
