package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT TRUE
		FROM admins
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID string, createdBy *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, created_by)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, createdBy)
	return err
}

// HasAnyAdmin reads through the caller's transaction so the bootstrap
// check participates in serializable isolation: two concurrent first
// registrations cannot both observe an empty admins table and commit.
func (s *AdminStore) HasAnyAdmin(ctx context.Context, tx Getter) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`)
	return count > 0, err
}
