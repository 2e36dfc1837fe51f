package store

import (
	"context"
	"time"
)

type UserStore struct {
	db DB
}

type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, id, username, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
	`, id, username, passwordHash)
	return err
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (User, error) {
	var row User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username)
	return row, err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (User, error) {
	var row User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = $1
	`, userID)
	return row, err
}
