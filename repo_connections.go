package bridge

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Connections interface {
	repository.Repository[*ConnectionRequest]
	ConnectionStore
}

type connections struct {
	repository.Repository[*ConnectionRequest]
	db *bun.DB
}

var _ ConnectionStore = (*connections)(nil)

func NewConnectionsRepository(db *bun.DB) Connections {
	repo := repository.NewRepository[*ConnectionRequest](db, repository.ModelHandlers[*ConnectionRequest]{
		NewRecord: func() *ConnectionRequest { return &ConnectionRequest{} },
		GetID: func(record *ConnectionRequest) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ConnectionRequest, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &connections{
		Repository: repo,
		db:         db,
	}
}

// Consume marks the request with token as used. Unknown, used and expired
// tokens fail with ErrConnectionInvalid.
func (c *connections) Consume(ctx context.Context, token string, now time.Time) (*ConnectionRequest, error) {
	record := &ConnectionRequest{}

	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(record).
			Where("token = ?", token).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
				return ErrConnectionInvalid.Clone().WithMetadata(map[string]any{"cause": "unknown"})
			}
			return err
		}

		if record.ConsumedAt != nil {
			return ErrConnectionInvalid.Clone().WithMetadata(map[string]any{"cause": "consumed"})
		}
		if !now.Before(record.ExpiresAt) {
			return ErrConnectionInvalid.Clone().WithMetadata(map[string]any{"cause": "expired"})
		}

		res, err := tx.NewUpdate().
			Model((*ConnectionRequest)(nil)).
			Set("consumed_at = ?", now).
			Where("id = ?", record.ID).
			Where("consumed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrConnectionInvalid.Clone().WithMetadata(map[string]any{"cause": "consumed"})
		}

		record.ConsumedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}
