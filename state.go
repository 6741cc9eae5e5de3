package bridge

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/gorilla/securecookie"
)

// Flow actions carried in the OAuth state.
const (
	ActionLogin = "login"
	ActionLink  = "link"
)

const stateCookieName = "bridge_oauth_state"

// StateManager handles OAuth state encoding and verification.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is what the bridge needs to finish a flow on callback.
type OAuthState struct {
	Nonce        string `json:"n"`
	Strategy     string `json:"s"`
	CodeVerifier string `json:"cv,omitempty"`
	Action       string `json:"a"`
	LinkUserID   string `json:"lu,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// EncryptedStateManager seals the state with securecookie: AES for the
// payload, HMAC-SHA256 over it.
type EncryptedStateManager struct {
	codec *securecookie.SecureCookie
	ttl   time.Duration
	now   func() time.Time
}

// NewEncryptedStateManager validates the keys and returns a state manager.
// The encryption key must be 16, 24 or 32 bytes.
func NewEncryptedStateManager(encryptionKey, hmacKey []byte, ttl time.Duration) (*EncryptedStateManager, error) {
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, configError("state encryption key must be 16, 24 or 32 bytes, got %d", len(encryptionKey))
	}
	if len(hmacKey) < 32 {
		return nil, configError("state hmac key must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	codec := securecookie.New(hmacKey, encryptionKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// expiry is checked against ExpiresAt so it can be reported apart
	codec.MaxAge(0)
	codec.MaxLength(0)

	return &EncryptedStateManager{
		codec: codec,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// Encode stamps, encrypts and signs the state.
func (sm *EncryptedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil {
		return "", ErrInvalidState
	}

	now := sm.now()
	if state.IssuedAt == 0 {
		state.IssuedAt = now.Unix()
	}
	if state.ExpiresAt == 0 {
		state.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if state.Nonce == "" {
		nonce, err := randomToken(16)
		if err != nil {
			return "", err
		}
		state.Nonce = nonce
	}

	token, err := sm.codec.Encode(stateCookieName, state)
	if err != nil {
		return "", withMeta(ErrInvalidState, err, "", map[string]any{"operation": "encode"})
	}
	return token, nil
}

// Decode verifies and decrypts the state.
func (sm *EncryptedStateManager) Decode(token string) (*OAuthState, error) {
	if token == "" {
		return nil, ErrInvalidState
	}

	var state OAuthState
	if err := sm.codec.Decode(stateCookieName, token, &state); err != nil {
		return nil, ErrInvalidState
	}

	if sm.now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return &state, nil
}

var errRandomSource = errors.New("failed to read random bytes")

// randomToken returns size random bytes as unpadded URL safe base64.
func randomToken(size int) (string, error) {
	b := securecookie.GenerateRandomKey(size)
	if b == nil {
		return "", errRandomSource
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
