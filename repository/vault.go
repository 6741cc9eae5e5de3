package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VaultRepository implements bridge.VaultStore using Bun. Tokens are sealed
// with the configured cipher before they are written.
type VaultRepository struct {
	db     *bun.DB
	cipher bridge.TokenCipher
}

type VaultRepositoryOption func(*VaultRepository)

// WithTokenCipher encrypts tokens at rest.
func WithTokenCipher(cipher bridge.TokenCipher) VaultRepositoryOption {
	return func(r *VaultRepository) {
		if cipher != nil {
			r.cipher = cipher
		}
	}
}

// NewVaultRepository creates a new repository.
func NewVaultRepository(db *bun.DB, opts ...VaultRepositoryOption) *VaultRepository {
	r := &VaultRepository{db: db, cipher: noopCipher{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

var _ bridge.VaultStore = (*VaultRepository)(nil)

// HasEntry implements bridge.VaultStore.
func (r *VaultRepository) HasEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*bridge.VaultEntry)(nil)).
		Where("user_id = ?", userID).
		Exists(ctx)
}

// EnsureEntry implements bridge.VaultStore.
func (r *VaultRepository) EnsureEntry(ctx context.Context, userID uuid.UUID) error {
	return ensureEntry(ctx, r.db, userID)
}

func ensureEntry(ctx context.Context, db bun.IDB, userID uuid.UUID) error {
	now := time.Now()
	_, err := db.NewInsert().
		Model(&bridge.VaultEntry{UserID: userID, CreatedAt: &now}).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	return err
}

// GetTokens implements bridge.VaultStore.
func (r *VaultRepository) GetTokens(ctx context.Context, userID uuid.UUID, strategy string) (*bridge.TokenRecord, error) {
	record := &bridge.TokenRecord{}
	err := r.db.NewSelect().
		Model(record).
		Where("user_id = ? AND strategy = ?", userID, strategy).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"user_id":  userID.String(),
				"strategy": strategy,
			})
		}
		return nil, err
	}

	if record.AccessToken, err = r.cipher.Open(record.AccessToken); err != nil {
		return nil, err
	}
	if record.RefreshToken, err = r.cipher.Open(record.RefreshToken); err != nil {
		return nil, err
	}
	return record, nil
}

// PutTokens implements bridge.VaultStore. It creates the vault entry when
// missing and overwrites the tokens of the strategy.
func (r *VaultRepository) PutTokens(ctx context.Context, record *bridge.TokenRecord) error {
	if record == nil {
		return errors.New("token record is required")
	}

	access, err := r.cipher.Seal(record.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.cipher.Seal(record.RefreshToken)
	if err != nil {
		return err
	}

	updatedAt := time.Now()
	if record.UpdatedAt != nil {
		updatedAt = *record.UpdatedAt
	}

	model := &bridge.TokenRecord{
		UserID:       record.UserID,
		Strategy:     record.Strategy,
		AccessToken:  access,
		RefreshToken: refresh,
		UpdatedAt:    &updatedAt,
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureEntry(ctx, tx, record.UserID); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(model).
			On("CONFLICT (user_id, strategy) DO UPDATE").
			Set("access_token = EXCLUDED.access_token").
			Set("refresh_token = EXCLUDED.refresh_token").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

type noopCipher struct{}

func (noopCipher) Seal(plain string) (string, error)  { return plain, nil }
func (noopCipher) Open(sealed string) (string, error) { return sealed, nil }
