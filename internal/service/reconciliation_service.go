package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Examined int `json:"examined"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ReconciliationService re-evaluates automatable decisions when late permit or
// payment evidence lands. Human-finalized decisions are never touched: the
// store's guarded update re-checks finality at write time, so a review racing
// this pass always wins.
type ReconciliationService struct {
	sessionRepo  repository.SessionRepository
	decisionRepo repository.DecisionRepository
	auditRepo    repository.AuditLogRepository
	engine       *DecisionEngine
}

func NewReconciliationService(
	sessionRepo repository.SessionRepository,
	decisionRepo repository.DecisionRepository,
	auditRepo repository.AuditLogRepository,
	engine *DecisionEngine,
) *ReconciliationService {
	return &ReconciliationService{
		sessionRepo:  sessionRepo,
		decisionRepo: decisionRepo,
		auditRepo:    auditRepo,
		engine:       engine,
	}
}

// ReconcileForPermit re-runs decisions affected by a permit change. A nil
// siteID means the permit is global and every site's decisions for the VRM
// are candidates.
func (s *ReconciliationService) ReconcileForPermit(ctx context.Context, vrm string, siteID *int) (*ReconcileResult, error) {
	return s.reconcile(ctx, domain.NormalizeVRM(vrm), siteID, "permit change")
}

// ReconcileForPayment re-runs decisions affected by a late payment record.
func (s *ReconciliationService) ReconcileForPayment(ctx context.Context, vrm string, siteID int) (*ReconcileResult, error) {
	return s.reconcile(ctx, domain.NormalizeVRM(vrm), &siteID, "payment change")
}

func (s *ReconciliationService) reconcile(ctx context.Context, vrm string, siteID *int, trigger string) (*ReconcileResult, error) {
	candidates, err := s.decisionRepo.FindReconciliationCandidates(ctx, vrm, siteID)
	if err != nil {
		return nil, fmt.Errorf("loading reconciliation candidates for %s: %w", vrm, err)
	}

	result := &ReconcileResult{}
	for i := range candidates {
		result.Examined++
		changed, err := s.reconcileOne(ctx, &candidates[i], trigger)
		if err != nil {
			// One bad decision must not abort the rest of the pass.
			result.Failed++
			log.Printf("reconciling decision %d failed: %v", candidates[i].ID, err)
			continue
		}
		if changed {
			result.Updated++
		} else {
			result.Skipped++
		}
	}
	log.Printf("Reconciliation for %s (%s): examined=%d updated=%d skipped=%d failed=%d",
		vrm, trigger, result.Examined, result.Updated, result.Skipped, result.Failed)
	return result, nil
}

func (s *ReconciliationService) reconcileOne(ctx context.Context, decision *domain.Decision, trigger string) (bool, error) {
	if decision.HumanFinalized() {
		return false, nil
	}
	if !decision.SessionID.Valid {
		return false, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, int(decision.SessionID.Int64))
	if err != nil {
		return false, fmt.Errorf("loading session %d: %w", decision.SessionID.Int64, err)
	}

	verdict, err := s.engine.Evaluate(ctx, session)
	if err != nil {
		if errors.Is(err, ErrSessionNotCompleted) {
			return false, nil
		}
		return false, fmt.Errorf("re-evaluating session %d: %w", session.ID, err)
	}

	if verdict.Outcome == decision.Outcome && verdict.Rule == decision.RuleApplied {
		return false, nil
	}

	before := struct {
		Outcome domain.Outcome     `json:"outcome"`
		Rule    domain.RuleApplied `json:"rule_applied"`
	}{decision.Outcome, decision.RuleApplied}

	decision.Outcome = verdict.Outcome
	decision.RuleApplied = verdict.Rule
	decision.Rationale = fmt.Sprintf("%s; reconciled after %s: %s", decision.Rationale, trigger, verdict.Rationale)
	if verdict.Params != nil {
		if raw, mErr := json.Marshal(verdict.Params); mErr == nil {
			decision.Params = raw
		}
	}

	updated, err := s.decisionRepo.UpdateOutcomeGuarded(ctx, decision)
	if err != nil {
		if errors.Is(err, repository.ErrDecisionFinalized) {
			// An operator finalized it between our read and write. Their
			// verdict stands.
			log.Printf("decision %d finalized during reconciliation, leaving untouched", decision.ID)
			return false, nil
		}
		return false, fmt.Errorf("updating decision %d: %w", decision.ID, err)
	}

	s.recordAudit(ctx, "decision", updated.ID, domain.AuditDecisionReconciled, "system", map[string]interface{}{
		"trigger":        trigger,
		"before_outcome": before.Outcome,
		"before_rule":    before.Rule,
		"after_outcome":  updated.Outcome,
		"after_rule":     updated.RuleApplied,
	})
	return true, nil
}

// EvaluateOrphanSessions sweeps completed sessions that never received a
// decision, typically after a crash between session completion and decision
// persistence.
func (s *ReconciliationService) EvaluateOrphanSessions(ctx context.Context, limit int) (*ReconcileResult, error) {
	if limit <= 0 {
		limit = 100
	}
	orphans, err := s.sessionRepo.FindCompletedWithoutDecision(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading completed sessions without decisions: %w", err)
	}

	result := &ReconcileResult{}
	for i := range orphans {
		result.Examined++
		if _, err := s.engine.DecideSession(ctx, &orphans[i]); err != nil {
			if errors.Is(err, ErrDecisionAlreadyExists) {
				result.Skipped++
				continue
			}
			result.Failed++
			log.Printf("deciding orphan session %d failed: %v", orphans[i].ID, err)
			continue
		}
		result.Updated++
	}
	log.Printf("Orphan session sweep: examined=%d decided=%d skipped=%d failed=%d",
		result.Examined, result.Updated, result.Skipped, result.Failed)
	return result, nil
}

func (s *ReconciliationService) recordAudit(ctx context.Context, entityType string, entityID int, action, actor string, details map[string]interface{}) {
	entry := domain.NewAuditEntry(entityType, entityID, action, actor, details)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("audit write failed for %s %d (%s): %v", entityType, entityID, action, err)
	}
}
