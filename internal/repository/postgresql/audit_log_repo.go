package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

type pgAuditLogRepository struct {
	db *sql.DB
}

func NewPgAuditLogRepository(db *sql.DB) repository.AuditLogRepository {
	return &pgAuditLogRepository{db: db}
}

func (r *pgAuditLogRepository) Create(ctx context.Context, e *domain.AuditEntry) error {
	query := `INSERT INTO audit_log (entity_type, entity_id, action, actor, details, created_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`

	var details interface{}
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}

	err := r.db.QueryRowContext(ctx, query,
		e.EntityType, e.EntityID, e.Action, e.Actor, details,
	).Scan(&e.ID, &e.CreatedAt)

	if err != nil {
		return fmt.Errorf("AuditLogRepository.Create: %w", err)
	}
	e.CreatedAt = e.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgAuditLogRepository) FindByEntity(ctx context.Context, entityType string, entityID int) ([]domain.AuditEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, actor, details, created_at
	           FROM audit_log
	           WHERE entity_type = $1 AND entity_id = $2
	           ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("AuditLogRepository.FindByEntity: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Actor, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("AuditLogRepository.FindByEntity (scanning row): %w", err)
		}
		e.Details = details
		e.CreatedAt = e.CreatedAt.In(time.UTC)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("AuditLogRepository.FindByEntity (rows error): %w", err)
	}
	return entries, nil
}
