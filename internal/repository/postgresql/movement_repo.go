package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"github.com/lib/pq"
)

type pgMovementRepository struct {
	db *sql.DB
}

func NewPgMovementRepository(db *sql.DB) repository.MovementRepository {
	return &pgMovementRepository{db: db}
}

const movementColumns = `id, event_id, site_id, vrm, timestamp, camera_ids, direction, image_refs,
	raw_payload, discarded, discard_reason, discarded_at, requires_review, created_at, updated_at`

func (r *pgMovementRepository) Create(ctx context.Context, m *domain.Movement) (*domain.Movement, error) {
	query := `INSERT INTO movements
	           (event_id, site_id, vrm, timestamp, camera_ids, direction, image_refs, raw_payload,
	            discarded, requires_review, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	var rawPayload interface{}
	if len(m.RawPayload) > 0 {
		rawPayload = []byte(m.RawPayload)
	}

	err := r.db.QueryRowContext(ctx, query,
		m.EventID, m.SiteID, m.VRM, m.Timestamp, pq.Array(m.CameraIDs), m.Direction,
		pq.Array(m.ImageRefs), rawPayload, m.Discarded, m.RequiresReview,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, repository.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("MovementRepository.Create: %w", err)
	}
	m.CreatedAt = m.CreatedAt.In(time.UTC)
	m.UpdatedAt = m.UpdatedAt.In(time.UTC)
	return m, nil
}

func (r *pgMovementRepository) FindByID(ctx context.Context, id int) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), "FindByID")
}

func (r *pgMovementRepository) FindByEventID(ctx context.Context, eventID string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE event_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, eventID), "FindByEventID")
}

func (r *pgMovementRepository) scanOne(row *sql.Row, op string) (*domain.Movement, error) {
	m := &domain.Movement{}
	var rawPayload []byte
	err := row.Scan(
		&m.ID, &m.EventID, &m.SiteID, &m.VRM, &m.Timestamp,
		pq.Array(&m.CameraIDs), &m.Direction, pq.Array(&m.ImageRefs), &rawPayload,
		&m.Discarded, &m.DiscardReason, &m.DiscardedAt, &m.RequiresReview,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("MovementRepository.%s: %w", op, err)
	}
	m.RawPayload = rawPayload
	normalizeMovementTimes(m)
	return m, nil
}

func (r *pgMovementRepository) Update(ctx context.Context, m *domain.Movement) (*domain.Movement, error) {
	query := `UPDATE movements
	           SET direction = $1, discarded = $2, discard_reason = $3, discarded_at = $4,
	               requires_review = $5, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $6
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		m.Direction, m.Discarded, m.DiscardReason, m.DiscardedAt, m.RequiresReview, m.ID,
	).Scan(&m.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("MovementRepository.Update: %w", err)
	}
	m.UpdatedAt = m.UpdatedAt.In(time.UTC)
	return m, nil
}

func (r *pgMovementRepository) FindRequiringReview(ctx context.Context, limit int) ([]domain.Movement, error) {
	query := `SELECT ` + movementColumns + `
	           FROM movements
	           WHERE requires_review = TRUE AND discarded = FALSE
	           ORDER BY timestamp ASC
	           LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("MovementRepository.FindRequiringReview: %w", err)
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		var m domain.Movement
		var rawPayload []byte
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.SiteID, &m.VRM, &m.Timestamp,
			pq.Array(&m.CameraIDs), &m.Direction, pq.Array(&m.ImageRefs), &rawPayload,
			&m.Discarded, &m.DiscardReason, &m.DiscardedAt, &m.RequiresReview,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("MovementRepository.FindRequiringReview (scanning row): %w", err)
		}
		m.RawPayload = rawPayload
		normalizeMovementTimes(&m)
		movements = append(movements, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("MovementRepository.FindRequiringReview (rows error): %w", err)
	}
	return movements, nil
}

func normalizeMovementTimes(m *domain.Movement) {
	m.Timestamp = m.Timestamp.In(time.UTC)
	if m.DiscardedAt.Valid {
		m.DiscardedAt.Time = m.DiscardedAt.Time.In(time.UTC)
	}
	m.CreatedAt = m.CreatedAt.In(time.UTC)
	m.UpdatedAt = m.UpdatedAt.In(time.UTC)
}
