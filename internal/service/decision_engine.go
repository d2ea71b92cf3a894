package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"gopkg.in/guregu/null.v4"
)

var ErrSessionNotCompleted = errors.New("session is not completed, nothing to evaluate")
var ErrDecisionAlreadyExists = errors.New("session already has a decision")
var ErrInvalidOutcome = errors.New("invalid decision outcome")

// DecisionNotifier receives newly created decisions for push to the operator
// review queue. Implemented by the websocket manager; a nil notifier is
// allowed.
type DecisionNotifier interface {
	NotifyDecision(session *domain.Session, decision *domain.Decision)
}

// DecisionEngine evaluates completed sessions against permits, payments and
// site grace policy. The evaluation core is a pure function of its inputs;
// all clock context comes from the session's own timestamps.
type DecisionEngine struct {
	sessionRepo  repository.SessionRepository
	decisionRepo repository.DecisionRepository
	permitRepo   repository.PermitRepository
	paymentRepo  repository.PaymentRepository
	siteRepo     repository.SiteRepository
	auditRepo    repository.AuditLogRepository
	notifier     DecisionNotifier
}

func NewDecisionEngine(
	sessionRepo repository.SessionRepository,
	decisionRepo repository.DecisionRepository,
	permitRepo repository.PermitRepository,
	paymentRepo repository.PaymentRepository,
	siteRepo repository.SiteRepository,
	auditRepo repository.AuditLogRepository,
	notifier DecisionNotifier,
) *DecisionEngine {
	return &DecisionEngine{
		sessionRepo:  sessionRepo,
		decisionRepo: decisionRepo,
		permitRepo:   permitRepo,
		paymentRepo:  paymentRepo,
		siteRepo:     siteRepo,
		auditRepo:    auditRepo,
		notifier:     notifier,
	}
}

// Evaluate loads the evidence set for a completed session and runs the
// policy chain. It persists nothing.
func (e *DecisionEngine) Evaluate(ctx context.Context, session *domain.Session) (domain.Verdict, error) {
	if session.Status != domain.SessionCompleted || !session.EndTime.Valid {
		return domain.Verdict{}, ErrSessionNotCompleted
	}

	site, err := e.siteRepo.FindByID(ctx, session.SiteID)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("loading site %d: %w", session.SiteID, err)
	}

	var permits []domain.Permit
	if site.EnforcementType != domain.EnforcementPayAndDisplay {
		permits, err = e.permitRepo.FindActiveForVRM(ctx, session.VRM, session.SiteID)
		if err != nil {
			return domain.Verdict{}, fmt.Errorf("loading permits for %s: %w", session.VRM, err)
		}
	}

	var payments []domain.Payment
	if site.EnforcementType != domain.EnforcementPermitOnly {
		payments, err = e.paymentRepo.FindByVRMAndSite(ctx, session.VRM, session.SiteID)
		if err != nil {
			return domain.Verdict{}, fmt.Errorf("loading payments for %s: %w", session.VRM, err)
		}
	}

	return evaluate(session, permits, payments, site), nil
}

// evaluate is the deterministic policy core: first match wins, in the order
// permit, payment, grace, default. Which checks run and which default rule
// fires depends on the site's enforcement type.
func evaluate(session *domain.Session, permits []domain.Permit, payments []domain.Payment, site *domain.Site) domain.Verdict {
	start := session.StartTime
	end := session.EndTime.Time

	if site.EnforcementType != domain.EnforcementPayAndDisplay {
		for i := range permits {
			if permits[i].Covers(session.SiteID, start, end) {
				return domain.Verdict{
					Outcome:   domain.OutcomeCompliant,
					Rule:      domain.RuleValidPermit,
					Rationale: fmt.Sprintf("active %s permit %d covers the stay", permits[i].Type, permits[i].ID),
					Params:    map[string]interface{}{"permit_id": permits[i].ID},
				}
			}
		}
	}

	if site.EnforcementType != domain.EnforcementPermitOnly {
		for i := range payments {
			if payments[i].Covers(start, end) {
				return domain.Verdict{
					Outcome:   domain.OutcomeCompliant,
					Rule:      domain.RuleValidPayment,
					Rationale: fmt.Sprintf("payment %d covers the stay window", payments[i].ID),
					Params:    map[string]interface{}{"payment_id": payments[i].ID},
				}
			}
		}
	}

	grace := site.TotalGraceMinutes()
	if session.DurationMinutes.Valid && session.DurationMinutes.Int64 <= grace {
		return domain.Verdict{
			Outcome:   domain.OutcomeCompliant,
			Rule:      domain.RuleWithinGrace,
			Rationale: fmt.Sprintf("stay of %d minutes is within the %d minute grace window", session.DurationMinutes.Int64, grace),
			Params:    map[string]interface{}{"grace_minutes": grace},
		}
	}

	if site.EnforcementType == domain.EnforcementPermitOnly {
		return domain.Verdict{
			Outcome:   domain.OutcomeEnforcementCandidate,
			Rule:      domain.RuleUnauthorisedParking,
			Rationale: "no active permit covers the stay at a permit-only site",
		}
	}
	return domain.Verdict{
		Outcome:   domain.OutcomeEnforcementCandidate,
		Rule:      domain.RuleNoValidPayment,
		Rationale: "no permit, payment or grace allowance covers the stay",
	}
}

// DecideSession evaluates a completed session and persists exactly one NEW
// decision for it. Returns ErrDecisionAlreadyExists when the session was
// already decided, so re-entrant triggers cannot double-decide.
func (e *DecisionEngine) DecideSession(ctx context.Context, session *domain.Session) (*domain.Decision, error) {
	if existing, err := e.decisionRepo.FindBySessionID(ctx, session.ID); err == nil && existing != nil {
		return nil, ErrDecisionAlreadyExists
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing decision: %w", err)
	}

	verdict, err := e.Evaluate(ctx, session)
	if err != nil {
		return nil, err
	}

	decision := &domain.Decision{
		SessionID:   null.IntFrom(int64(session.ID)),
		Outcome:     verdict.Outcome,
		Status:      domain.DecisionNew,
		RuleApplied: verdict.Rule,
		Rationale:   verdict.Rationale,
	}
	if verdict.Params != nil {
		if raw, mErr := json.Marshal(verdict.Params); mErr == nil {
			decision.Params = raw
		}
	}

	created, err := e.decisionRepo.Create(ctx, decision)
	if err != nil {
		return nil, fmt.Errorf("persisting decision for session %d: %w", session.ID, err)
	}
	log.Printf("Decision %d for session %d (%s at site %d): %s via %s",
		created.ID, session.ID, session.VRM, session.SiteID, created.Outcome, created.RuleApplied)

	e.recordAudit(ctx, "decision", created.ID, domain.AuditDecisionCreated, "system", map[string]interface{}{
		"session_id": session.ID,
		"outcome":    created.Outcome,
		"rule":       created.RuleApplied,
	})

	if e.notifier != nil {
		e.notifier.NotifyDecision(session, created)
	}
	return created, nil
}

// ReviewDecision applies a human verdict. Approve keeps (or overrides) the
// outcome and moves the decision to APPROVED; decline moves it to DECLINED.
// An override outcome marks the decision operator-overridden, which locks it
// against all future reconciliation.
func (e *DecisionEngine) ReviewDecision(ctx context.Context, id int, dto domain.ReviewDecisionDTO, operator string) (*domain.Decision, error) {
	decision, err := e.decisionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	before := decision.Outcome

	if dto.Approve {
		decision.Status = domain.DecisionApproved
	} else {
		decision.Status = domain.DecisionDeclined
	}
	if dto.OverrideOutcome != "" {
		override := domain.Outcome(dto.OverrideOutcome)
		if !override.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, dto.OverrideOutcome)
		}
		decision.Outcome = override
		decision.RuleApplied = domain.RuleOperatorOverride
		decision.IsOperatorOverride = true
	}
	decision.OperatorID = null.StringFrom(operator)
	if dto.Note != "" {
		decision.Rationale = decision.Rationale + "; review: " + dto.Note
	}

	updated, err := e.decisionRepo.UpdateReview(ctx, decision)
	if err != nil {
		return nil, fmt.Errorf("persisting review of decision %d: %w", id, err)
	}

	e.recordAudit(ctx, "decision", updated.ID, domain.AuditDecisionReviewed, operator, map[string]interface{}{
		"before_outcome": before,
		"after_outcome":  updated.Outcome,
		"status":         updated.Status,
		"override":       updated.IsOperatorOverride,
	})
	return updated, nil
}

// recordAudit persists an audit fact. A failed audit write is logged but
// does not fail the audited operation.
func (e *DecisionEngine) recordAudit(ctx context.Context, entityType string, entityID int, action, actor string, details map[string]interface{}) {
	entry := domain.NewAuditEntry(entityType, entityID, action, actor, details)
	if err := e.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("audit write failed for %s %d (%s): %v", entityType, entityID, action, err)
	}
}
