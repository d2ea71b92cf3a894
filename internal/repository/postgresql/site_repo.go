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

type pgSiteRepository struct {
	db *sql.DB
}

func NewPgSiteRepository(db *sql.DB) repository.SiteRepository {
	return &pgSiteRepository{db: db}
}

const siteColumns = `id, name, address, enforcement_type, entry_grace_minutes, exit_grace_minutes,
	created_at, updated_at`

func (r *pgSiteRepository) Create(ctx context.Context, s *domain.Site) (*domain.Site, error) {
	query := `INSERT INTO sites
	           (name, address, enforcement_type, entry_grace_minutes, exit_grace_minutes,
	            created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.Name, s.Address, s.EnforcementType, s.EntryGraceMinutes, s.ExitGraceMinutes,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("SiteRepository.Create: %w", err)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSiteRepository) FindByID(ctx context.Context, id int) (*domain.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`
	s := &domain.Site{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Address, &s.EnforcementType,
		&s.EntryGraceMinutes, &s.ExitGraceMinutes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SiteRepository.FindByID: %w", err)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSiteRepository) FindAll(ctx context.Context) ([]domain.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SiteRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Address, &s.EnforcementType,
			&s.EntryGraceMinutes, &s.ExitGraceMinutes, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("SiteRepository.FindAll (scanning row): %w", err)
		}
		s.CreatedAt = s.CreatedAt.In(time.UTC)
		s.UpdatedAt = s.UpdatedAt.In(time.UTC)
		sites = append(sites, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SiteRepository.FindAll (rows error): %w", err)
	}
	return sites, nil
}

func (r *pgSiteRepository) Update(ctx context.Context, s *domain.Site) (*domain.Site, error) {
	query := `UPDATE sites
	           SET name = $1, address = $2, enforcement_type = $3,
	               entry_grace_minutes = $4, exit_grace_minutes = $5, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $6
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.Name, s.Address, s.EnforcementType, s.EntryGraceMinutes, s.ExitGraceMinutes, s.ID,
	).Scan(&s.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SiteRepository.Update: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSiteRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("SiteRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SiteRepository.Delete (checking rows): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
