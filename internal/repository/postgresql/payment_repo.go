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

type pgPaymentRepository struct {
	db *sql.DB
}

func NewPgPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &pgPaymentRepository{db: db}
}

const paymentColumns = `id, site_id, vrm, amount, start_time, expiry_time, source, external_ref, created_at`

func (r *pgPaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	query := `INSERT INTO payments
	           (site_id, vrm, amount, start_time, expiry_time, source, external_ref, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.SiteID, p.VRM, p.Amount, p.StartTime, p.ExpiryTime, p.Source, p.ExternalRef,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("PaymentRepository.Create: %w", err)
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	return p, nil
}

func (r *pgPaymentRepository) FindByID(ctx context.Context, id int) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p := &domain.Payment{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.SiteID, &p.VRM, &p.Amount, &p.StartTime, &p.ExpiryTime,
		&p.Source, &p.ExternalRef, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PaymentRepository.FindByID: %w", err)
	}
	normalizePaymentTimes(p)
	return p, nil
}

func (r *pgPaymentRepository) FindByVRMAndSite(ctx context.Context, vrm string, siteID int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
	           FROM payments
	           WHERE vrm = $1 AND site_id = $2
	           ORDER BY start_time ASC`

	rows, err := r.db.QueryContext(ctx, query, vrm, siteID)
	if err != nil {
		return nil, fmt.Errorf("PaymentRepository.FindByVRMAndSite: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.SiteID, &p.VRM, &p.Amount, &p.StartTime, &p.ExpiryTime,
			&p.Source, &p.ExternalRef, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("PaymentRepository.FindByVRMAndSite (scanning row): %w", err)
		}
		normalizePaymentTimes(&p)
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PaymentRepository.FindByVRMAndSite (rows error): %w", err)
	}
	return payments, nil
}

func (r *pgPaymentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("PaymentRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("PaymentRepository.Delete (checking rows): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func normalizePaymentTimes(p *domain.Payment) {
	p.StartTime = p.StartTime.In(time.UTC)
	p.ExpiryTime = p.ExpiryTime.In(time.UTC)
	p.CreatedAt = p.CreatedAt.In(time.UTC)
}
