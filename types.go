package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserStore is the local user directory the bridge resolves profiles against.
// Lookups that find nothing return a repository record not found error.
type UserStore interface {
	FindOne(ctx context.Context, criteria Criteria) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
	LinkIdentity(ctx context.Context, userID uuid.UUID, strategy, subject string) error
}

// VaultStore persists per user, per strategy provider tokens.
type VaultStore interface {
	HasEntry(ctx context.Context, userID uuid.UUID) (bool, error)
	EnsureEntry(ctx context.Context, userID uuid.UUID) error
	GetTokens(ctx context.Context, userID uuid.UUID, strategy string) (*TokenRecord, error)
	PutTokens(ctx context.Context, record *TokenRecord) error
}

// HandoffCache is a key/value store with per key expiry. Take removes the
// value it returns.
type HandoffCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

// DocumentStore resolves host documents across locales.
type DocumentStore interface {
	FindByCrossLocaleID(ctx context.Context, crossLocaleID, locale string) (*Document, error)
}

// ConnectionStore persists connection requests. Consume must mark a request
// used and fail if it was already used or has expired.
type ConnectionStore interface {
	Create(ctx context.Context, record *ConnectionRequest, criteria ...repository.InsertCriteria) (*ConnectionRequest, error)
	Consume(ctx context.Context, token string, now time.Time) (*ConnectionRequest, error)
}

// Notifier delivers connection confirmation links to users.
type Notifier interface {
	NotifyConnectionRequest(ctx context.Context, notice ConnectionNotice) error
}

// Refresher exchanges a refresh token for new tokens with the named strategy.
type Refresher interface {
	Refresh(ctx context.Context, strategy, refreshToken string) (*Tokens, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] BRIDGE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] BRIDGE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] BRIDGE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] BRIDGE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func ensureLogger(logger Logger) Logger {
	if logger == nil {
		return defLogger{}
	}
	return logger
}
