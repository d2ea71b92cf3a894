package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

type pgCameraRepository struct {
	db *sql.DB
}

func NewPgCameraRepository(db *sql.DB) repository.CameraRepository {
	return &pgCameraRepository{db: db}
}

const cameraColumns = `id, camera_id, site_id, model, status, last_seen_at, created_at, updated_at`

func (r *pgCameraRepository) CreateOrUpdate(ctx context.Context, c *domain.Camera) (*domain.Camera, error) {
	query := `INSERT INTO cameras (camera_id, site_id, model, status, last_seen_at, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           ON CONFLICT (camera_id) DO UPDATE
	           SET site_id = EXCLUDED.site_id,
	               model = COALESCE(NULLIF(EXCLUDED.model, ''), cameras.model),
	               status = EXCLUDED.status,
	               last_seen_at = EXCLUDED.last_seen_at,
	               updated_at = CURRENT_TIMESTAMP
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		c.CameraID, c.SiteID, c.Model, c.Status, c.LastSeenAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("CameraRepository.CreateOrUpdate: %w", err)
	}
	c.CreatedAt = c.CreatedAt.In(time.UTC)
	c.UpdatedAt = c.UpdatedAt.In(time.UTC)
	return c, nil
}

func (r *pgCameraRepository) FindByCameraID(ctx context.Context, cameraID string) (*domain.Camera, error) {
	query := `SELECT ` + cameraColumns + ` FROM cameras WHERE camera_id = $1`
	c := &domain.Camera{}
	err := r.db.QueryRowContext(ctx, query, cameraID).Scan(
		&c.ID, &c.CameraID, &c.SiteID, &c.Model, &c.Status, &c.LastSeenAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("CameraRepository.FindByCameraID: %w", err)
	}
	normalizeCameraTimes(c)
	return c, nil
}

func (r *pgCameraRepository) FindAll(ctx context.Context) ([]domain.Camera, error) {
	query := `SELECT ` + cameraColumns + ` FROM cameras ORDER BY camera_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CameraRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var cameras []domain.Camera
	for rows.Next() {
		var c domain.Camera
		if err := rows.Scan(
			&c.ID, &c.CameraID, &c.SiteID, &c.Model, &c.Status, &c.LastSeenAt,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("CameraRepository.FindAll (scanning row): %w", err)
		}
		normalizeCameraTimes(&c)
		cameras = append(cameras, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("CameraRepository.FindAll (rows error): %w", err)
	}
	return cameras, nil
}

func (r *pgCameraRepository) NoteSeen(ctx context.Context, cameraID string, siteID int, seenAt time.Time) error {
	query := `INSERT INTO cameras (camera_id, site_id, status, last_seen_at, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           ON CONFLICT (camera_id) DO UPDATE
	           SET status = $3, last_seen_at = $4, updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, cameraID, siteID, domain.CameraOnline, seenAt)
	if err != nil {
		return fmt.Errorf("CameraRepository.NoteSeen: %w", err)
	}
	return nil
}

func normalizeCameraTimes(c *domain.Camera) {
	if c.LastSeenAt.Valid {
		c.LastSeenAt.Time = c.LastSeenAt.Time.In(time.UTC)
	}
	c.CreatedAt = c.CreatedAt.In(time.UTC)
	c.UpdatedAt = c.UpdatedAt.In(time.UTC)
}
