package bridge

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type documents struct {
	db *bun.DB
}

func NewDocumentsRepository(db *bun.DB) DocumentStore {
	return &documents{db: db}
}

// FindByCrossLocaleID returns the version of a document in locale.
func (d *documents) FindByCrossLocaleID(ctx context.Context, crossLocaleID, locale string) (*Document, error) {
	record := &Document{}
	err := d.db.NewSelect().
		Model(record).
		Where("?TableAlias.cross_locale_id = ?", crossLocaleID).
		Where("?TableAlias.locale = ?", locale).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"cross_locale_id": crossLocaleID,
				"locale":          locale,
			})
		}
		return nil, err
	}
	return record, nil
}
