package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]
	UserStore
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ UserStore = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func withIdentities(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Relation("Identities")
}

// GetByID loads a user with its provider identities.
func (a *users) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.Repository.GetByID(ctx, id, append(criteria, withIdentities)...)
}

// FindOne returns the first user matching criteria.
func (a *users) FindOne(ctx context.Context, criteria Criteria) (*User, error) {
	if criteria.IsZero() {
		return nil, fmt.Errorf("refusing to look up users with empty criteria")
	}

	record := &User{}
	q := a.db.NewSelect().Model(record).Relation("Identities")

	q, err := applyCriteria(q, criteria)
	if err != nil {
		return nil, err
	}

	err = q.OrderExpr("?TableAlias.created_at ASC").Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(criteriaMetadata(criteria))
		}
		return nil, err
	}

	return record, nil
}

var columnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func applyCriteria(q *bun.SelectQuery, c Criteria) (*bun.SelectQuery, error) {
	if c.Identity != nil {
		q = q.Where(
			"EXISTS (SELECT 1 FROM user_identities AS ui WHERE ui.user_id = ?TableAlias.id AND ui.strategy = ? AND ui.subject = ?)",
			c.Identity.Strategy, c.Identity.Subject,
		)
	}

	if c.Username != "" {
		q = q.Where("?TableAlias.username = ?", c.Username)
	}

	if len(c.Emails) > 0 {
		q = q.Where("?TableAlias.email IN (?)", bun.In(c.Emails))
	}

	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !columnName.MatchString(k) {
			return nil, fmt.Errorf("invalid criteria field %q", k)
		}
		q = q.Where("?TableAlias.? = ?", bun.Ident(k), c.Fields[k])
	}

	if c.ExcludeDisabled {
		q = q.Where("?TableAlias.disabled = ?", false)
	}

	return q, nil
}

func criteriaMetadata(c Criteria) map[string]any {
	meta := map[string]any{}
	if c.Identity != nil {
		meta["strategy"] = c.Identity.Strategy
		meta["subject"] = c.Identity.Subject
	}
	if c.Username != "" {
		meta["username"] = c.Username
	}
	if len(c.Emails) > 0 {
		meta["emails"] = c.Emails
	}
	return meta
}

// Create stores the user and its identities in one transaction.
func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	var out *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.CreateTx(ctx, tx, record, criteria...)
		return err
	})
	return out, err
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)

	identities := record.Identities
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, err
	}

	for _, identity := range identities {
		if identity == nil {
			continue
		}
		identity.UserID = created.ID
		if identity.ID == uuid.Nil {
			identity.ID = uuid.New()
		}
	}
	if len(identities) > 0 {
		if _, err := tx.NewInsert().Model(&identities).Exec(ctx); err != nil {
			return nil, err
		}
	}
	created.Identities = identities

	return created, nil
}

// LinkIdentity attaches a provider subject to the user. The subject must not
// belong to another user.
func (a *users) LinkIdentity(ctx context.Context, userID uuid.UUID, strategy, subject string) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &UserIdentity{}
		err := tx.NewSelect().
			Model(existing).
			Where("strategy = ? AND subject = ?", strategy, subject).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil && existing.UserID == userID:
			return nil
		case err == nil:
			return fmt.Errorf("%s identity %q is linked to another user", strategy, subject)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		now := time.Now()
		identity := &UserIdentity{
			ID:        uuid.New(),
			UserID:    userID,
			Strategy:  strategy,
			Subject:   subject,
			CreatedAt: &now,
		}
		_, err = tx.NewInsert().
			Model(identity).
			On("CONFLICT (user_id, strategy) DO UPDATE").
			Set("subject = EXCLUDED.subject").
			Exec(ctx)
		return err
	})
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleGuest
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
