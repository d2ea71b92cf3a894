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

type pgPermitRepository struct {
	db *sql.DB
}

func NewPgPermitRepository(db *sql.DB) repository.PermitRepository {
	return &pgPermitRepository{db: db}
}

const permitColumns = `id, site_id, vrm, type, start_date, end_date, active, created_at, updated_at`

func (r *pgPermitRepository) Create(ctx context.Context, p *domain.Permit) (*domain.Permit, error) {
	query := `INSERT INTO permits
	           (site_id, vrm, type, start_date, end_date, active, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.SiteID, p.VRM, p.Type, p.StartDate, p.EndDate, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("PermitRepository.Create: %w", err)
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	p.UpdatedAt = p.UpdatedAt.In(time.UTC)
	return p, nil
}

func (r *pgPermitRepository) FindByID(ctx context.Context, id int) (*domain.Permit, error) {
	query := `SELECT ` + permitColumns + ` FROM permits WHERE id = $1`
	p := &domain.Permit{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.SiteID, &p.VRM, &p.Type, &p.StartDate, &p.EndDate, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PermitRepository.FindByID: %w", err)
	}
	normalizePermitTimes(p)
	return p, nil
}

func (r *pgPermitRepository) FindActiveForVRM(ctx context.Context, vrm string, siteID int) ([]domain.Permit, error) {
	// Site-null permits apply to every site.
	query := `SELECT ` + permitColumns + `
	           FROM permits
	           WHERE vrm = $1 AND active = TRUE AND (site_id = $2 OR site_id IS NULL)
	           ORDER BY start_date ASC`

	rows, err := r.db.QueryContext(ctx, query, vrm, siteID)
	if err != nil {
		return nil, fmt.Errorf("PermitRepository.FindActiveForVRM: %w", err)
	}
	defer rows.Close()

	var permits []domain.Permit
	for rows.Next() {
		var p domain.Permit
		if err := rows.Scan(
			&p.ID, &p.SiteID, &p.VRM, &p.Type, &p.StartDate, &p.EndDate, &p.Active,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("PermitRepository.FindActiveForVRM (scanning row): %w", err)
		}
		normalizePermitTimes(&p)
		permits = append(permits, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PermitRepository.FindActiveForVRM (rows error): %w", err)
	}
	return permits, nil
}

func (r *pgPermitRepository) Update(ctx context.Context, p *domain.Permit) (*domain.Permit, error) {
	query := `UPDATE permits
	           SET site_id = $1, vrm = $2, type = $3, start_date = $4, end_date = $5,
	               active = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.SiteID, p.VRM, p.Type, p.StartDate, p.EndDate, p.Active, p.ID,
	).Scan(&p.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PermitRepository.Update: %w", err)
	}
	p.UpdatedAt = p.UpdatedAt.In(time.UTC)
	return p, nil
}

func (r *pgPermitRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM permits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("PermitRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("PermitRepository.Delete (checking rows): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func normalizePermitTimes(p *domain.Permit) {
	p.StartDate = p.StartDate.In(time.UTC)
	if p.EndDate.Valid {
		p.EndDate.Time = p.EndDate.Time.In(time.UTC)
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	p.UpdatedAt = p.UpdatedAt.In(time.UTC)
}
