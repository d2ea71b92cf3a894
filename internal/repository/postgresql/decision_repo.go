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
)

type pgDecisionRepository struct {
	db *sql.DB
}

func NewPgDecisionRepository(db *sql.DB) repository.DecisionRepository {
	return &pgDecisionRepository{db: db}
}

const decisionColumns = `id, session_id, movement_id, outcome, status, rule_applied, rationale,
	is_operator_override, operator_id, params, created_at, updated_at`

func (r *pgDecisionRepository) Create(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	query := `INSERT INTO decisions
	           (session_id, movement_id, outcome, status, rule_applied, rationale,
	            is_operator_override, operator_id, params, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	var params interface{}
	if len(d.Params) > 0 {
		params = []byte(d.Params)
	}

	err := r.db.QueryRowContext(ctx, query,
		d.SessionID, d.MovementID, d.Outcome, d.Status, d.RuleApplied, d.Rationale,
		d.IsOperatorOverride, d.OperatorID, params,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("DecisionRepository.Create: %w", err)
	}
	d.CreatedAt = d.CreatedAt.In(time.UTC)
	d.UpdatedAt = d.UpdatedAt.In(time.UTC)
	return d, nil
}

func (r *pgDecisionRepository) FindByID(ctx context.Context, id int) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`
	d := &domain.Decision{}
	err := scanDecisionRow(r.db.QueryRowContext(ctx, query, id), d)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("DecisionRepository.FindByID: %w", err)
	}
	return d, nil
}

func (r *pgDecisionRepository) FindBySessionID(ctx context.Context, sessionID int) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + `
	           FROM decisions WHERE session_id = $1
	           ORDER BY created_at DESC LIMIT 1`
	d := &domain.Decision{}
	err := scanDecisionRow(r.db.QueryRowContext(ctx, query, sessionID), d)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("DecisionRepository.FindBySessionID: %w", err)
	}
	return d, nil
}

func (r *pgDecisionRepository) FindReconciliationCandidates(ctx context.Context, vrm string, siteID *int) ([]domain.Decision, error) {
	query := `SELECT d.id, d.session_id, d.movement_id, d.outcome, d.status, d.rule_applied,
	                 d.rationale, d.is_operator_override, d.operator_id, d.params,
	                 d.created_at, d.updated_at
	           FROM decisions d
	           JOIN sessions s ON s.id = d.session_id
	           WHERE d.status IN ($1, $2)
	             AND d.is_operator_override = FALSE
	             AND s.vrm = $3`

	args := []interface{}{domain.DecisionNew, domain.DecisionCandidate, vrm}
	if siteID != nil {
		query += " AND s.site_id = $4"
		args = append(args, *siteID)
	}
	query += " ORDER BY d.created_at ASC"

	return r.queryDecisions(ctx, "FindReconciliationCandidates", query, args...)
}

func (r *pgDecisionRepository) UpdateOutcomeGuarded(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	// The human-finalized filter is re-checked inside this statement so a
	// concurrent review between candidate selection and this write cannot be
	// lost: a finalized row simply no longer matches.
	query := `UPDATE decisions
	           SET outcome = $1, rule_applied = $2, rationale = $3, params = $4,
	               updated_at = CURRENT_TIMESTAMP
	           WHERE id = $5
	             AND status IN ($6, $7)
	             AND is_operator_override = FALSE
	           RETURNING updated_at`

	var params interface{}
	if len(d.Params) > 0 {
		params = []byte(d.Params)
	}

	err := r.db.QueryRowContext(ctx, query,
		d.Outcome, d.RuleApplied, d.Rationale, params,
		d.ID, domain.DecisionNew, domain.DecisionCandidate,
	).Scan(&d.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrDecisionFinalized
		}
		return nil, fmt.Errorf("DecisionRepository.UpdateOutcomeGuarded: %w", err)
	}
	d.UpdatedAt = d.UpdatedAt.In(time.UTC)
	return d, nil
}

func (r *pgDecisionRepository) UpdateReview(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	query := `UPDATE decisions
	           SET outcome = $1, status = $2, rule_applied = $3, rationale = $4,
	               is_operator_override = $5, operator_id = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		d.Outcome, d.Status, d.RuleApplied, d.Rationale,
		d.IsOperatorOverride, d.OperatorID, d.ID,
	).Scan(&d.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("DecisionRepository.UpdateReview: %w", err)
	}
	d.UpdatedAt = d.UpdatedAt.In(time.UTC)
	return d, nil
}

func (r *pgDecisionRepository) Find(ctx context.Context, filter domain.DecisionFilterDTO) ([]domain.Decision, error) {
	baseQuery := `SELECT d.id, d.session_id, d.movement_id, d.outcome, d.status, d.rule_applied,
	                     d.rationale, d.is_operator_override, d.operator_id, d.params,
	                     d.created_at, d.updated_at
	               FROM decisions d
	               JOIN sessions s ON s.id = d.session_id`

	var conditions []string
	var args []interface{}
	argID := 1

	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("s.site_id = $%d", argID))
		args = append(args, *filter.SiteID)
		argID++
	}
	if filter.VRM != nil {
		conditions = append(conditions, fmt.Sprintf("s.vrm = $%d", argID))
		args = append(args, domain.NormalizeVRM(*filter.VRM))
		argID++
	}
	if filter.Outcome != nil {
		conditions = append(conditions, fmt.Sprintf("d.outcome = $%d", argID))
		args = append(args, *filter.Outcome)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("d.status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY d.created_at DESC"

	return r.queryDecisions(ctx, "Find", query, args...)
}

func (r *pgDecisionRepository) queryDecisions(ctx context.Context, op, query string, args ...interface{}) ([]domain.Decision, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("DecisionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var params []byte
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.MovementID, &d.Outcome, &d.Status, &d.RuleApplied,
			&d.Rationale, &d.IsOperatorOverride, &d.OperatorID, &params,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("DecisionRepository.%s (scanning row): %w", op, err)
		}
		d.Params = params
		d.CreatedAt = d.CreatedAt.In(time.UTC)
		d.UpdatedAt = d.UpdatedAt.In(time.UTC)
		decisions = append(decisions, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("DecisionRepository.%s (rows error): %w", op, err)
	}
	return decisions, nil
}

func scanDecisionRow(row *sql.Row, d *domain.Decision) error {
	var params []byte
	err := row.Scan(
		&d.ID, &d.SessionID, &d.MovementID, &d.Outcome, &d.Status, &d.RuleApplied,
		&d.Rationale, &d.IsOperatorOverride, &d.OperatorID, &params,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	d.Params = params
	d.CreatedAt = d.CreatedAt.In(time.UTC)
	d.UpdatedAt = d.UpdatedAt.In(time.UTC)
	return nil
}
