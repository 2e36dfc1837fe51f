package store

import (
	"context"
	"time"
)

type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ID          string    `db:"id"`
	ActorUserID *string   `db:"actor_user_id"`
	Action      string    `db:"action"`
	EntityType  string    `db:"entity_type"`
	EntityID    string    `db:"entity_id"`
	Data        string    `db:"data"`
	CreatedAt   time.Time `db:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, id, actorID, action, entityType, entityID, data string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, actorID, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return rows, err
}
