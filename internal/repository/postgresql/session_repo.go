package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"github.com/lib/pq"
)

type pgSessionRepository struct {
	db *sql.DB
}

func NewPgSessionRepository(db *sql.DB) repository.SessionRepository {
	return &pgSessionRepository{db: db}
}

const sessionColumns = `id, site_id, vrm, entry_movement_id, exit_movement_id, start_time, end_time,
	duration_minutes, status, created_at, updated_at`

func (r *pgSessionRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	query := `INSERT INTO sessions
	           (site_id, vrm, entry_movement_id, exit_movement_id, start_time, end_time,
	            duration_minutes, status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.SiteID, s.VRM, s.EntryMovementID, s.ExitMovementID,
		s.StartTime, s.EndTime, s.DurationMinutes, s.Status,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		// The partial unique index on open sessions turns the find-or-create
		// race into a constraint violation instead of a duplicate stay.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, repository.ErrOpenSessionExists
		}
		return nil, fmt.Errorf("SessionRepository.Create: %w", err)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSessionRepository) FindByID(ctx context.Context, id int) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s := &domain.Session{}
	err := r.scanSessionRow(r.db.QueryRowContext(ctx, query, id), s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SessionRepository.FindByID: %w", err)
	}
	return s, nil
}

func (r *pgSessionRepository) FindOpenByVRMAndSite(ctx context.Context, siteID int, vrm string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
	           FROM sessions
	           WHERE site_id = $1 AND vrm = $2 AND status = $3 AND exit_movement_id IS NULL
	           ORDER BY start_time DESC LIMIT 1`

	s := &domain.Session{}
	err := r.scanSessionRow(r.db.QueryRowContext(ctx, query, siteID, vrm, domain.SessionProvisional), s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoOpenSession
		}
		return nil, fmt.Errorf("SessionRepository.FindOpenByVRMAndSite: %w", err)
	}
	return s, nil
}

func (r *pgSessionRepository) FindByEntryMovementID(ctx context.Context, movementID int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE entry_movement_id = $1`
	return r.querySessions(ctx, "FindByEntryMovementID", query, movementID)
}

func (r *pgSessionRepository) FindByExitMovementID(ctx context.Context, movementID int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE exit_movement_id = $1`
	return r.querySessions(ctx, "FindByExitMovementID", query, movementID)
}

func (r *pgSessionRepository) Update(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	query := `UPDATE sessions
	           SET entry_movement_id = $1, exit_movement_id = $2, start_time = $3, end_time = $4,
	               duration_minutes = $5, status = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.EntryMovementID, s.ExitMovementID, s.StartTime, s.EndTime,
		s.DurationMinutes, s.Status, s.ID,
	).Scan(&s.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SessionRepository.Update: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSessionRepository) Find(ctx context.Context, filter domain.SessionFilterDTO) ([]domain.Session, error) {
	baseQuery := `SELECT ` + sessionColumns + ` FROM sessions`

	var conditions []string
	var args []interface{}
	argID := 1

	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", argID))
		args = append(args, *filter.SiteID)
		argID++
	}
	if filter.VRM != nil {
		conditions = append(conditions, fmt.Sprintf("vrm = $%d", argID))
		args = append(args, domain.NormalizeVRM(*filter.VRM))
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_time DESC"

	return r.querySessions(ctx, "Find", query, args...)
}

func (r *pgSessionRepository) FindOpenBySite(ctx context.Context, siteID int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
	           FROM sessions
	           WHERE site_id = $1 AND status = $2 AND exit_movement_id IS NULL
	           ORDER BY start_time DESC`
	return r.querySessions(ctx, "FindOpenBySite", query, siteID, domain.SessionProvisional)
}

func (r *pgSessionRepository) FindStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
	           FROM sessions
	           WHERE status = $1 AND exit_movement_id IS NULL AND start_time < $2
	           ORDER BY start_time ASC
	           LIMIT $3`
	return r.querySessions(ctx, "FindStaleOpen", query, domain.SessionProvisional, cutoff, limit)
}

func (r *pgSessionRepository) FindCompletedWithoutDecision(ctx context.Context, limit int) ([]domain.Session, error) {
	query := `SELECT s.id, s.site_id, s.vrm, s.entry_movement_id, s.exit_movement_id, s.start_time,
	                 s.end_time, s.duration_minutes, s.status, s.created_at, s.updated_at
	           FROM sessions s
	           LEFT JOIN decisions d ON d.session_id = s.id
	           WHERE s.status = $1 AND d.id IS NULL
	           ORDER BY s.end_time ASC
	           LIMIT $2`
	return r.querySessions(ctx, "FindCompletedWithoutDecision", query, domain.SessionCompleted, limit)
}

func (r *pgSessionRepository) StaleStats(ctx context.Context, now time.Time) (*domain.StaleSessionStats, error) {
	query := `SELECT
	            COUNT(*) FILTER (WHERE start_time >= $1),
	            COUNT(*) FILTER (WHERE start_time < $1 AND start_time >= $2),
	            COUNT(*) FILTER (WHERE start_time < $2 AND start_time >= $3),
	            COUNT(*) FILTER (WHERE start_time < $3),
	            COUNT(*)
	           FROM sessions
	           WHERE status = $4 AND exit_movement_id IS NULL`

	stats := &domain.StaleSessionStats{}
	err := r.db.QueryRowContext(ctx, query,
		now.Add(-24*time.Hour), now.Add(-72*time.Hour), now.Add(-7*24*time.Hour),
		domain.SessionProvisional,
	).Scan(&stats.Under24h, &stats.From24To72h, &stats.From72hTo7d, &stats.Over7d, &stats.Total)

	if err != nil {
		return nil, fmt.Errorf("SessionRepository.StaleStats: %w", err)
	}
	return stats, nil
}

func (r *pgSessionRepository) querySessions(ctx context.Context, op, query string, args ...interface{}) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SessionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID, &s.SiteID, &s.VRM, &s.EntryMovementID, &s.ExitMovementID,
			&s.StartTime, &s.EndTime, &s.DurationMinutes, &s.Status,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("SessionRepository.%s (scanning row): %w", op, err)
		}
		normalizeSessionTimes(&s)
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SessionRepository.%s (rows error): %w", op, err)
	}
	return sessions, nil
}

func (r *pgSessionRepository) scanSessionRow(row *sql.Row, s *domain.Session) error {
	err := row.Scan(
		&s.ID, &s.SiteID, &s.VRM, &s.EntryMovementID, &s.ExitMovementID,
		&s.StartTime, &s.EndTime, &s.DurationMinutes, &s.Status,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	normalizeSessionTimes(s)
	return nil
}

func normalizeSessionTimes(s *domain.Session) {
	s.StartTime = s.StartTime.In(time.UTC)
	if s.EndTime.Valid {
		s.EndTime.Time = s.EndTime.Time.In(time.UTC)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
}
