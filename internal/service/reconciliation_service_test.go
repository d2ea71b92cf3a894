package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileLatePaymentFlipsOutcome(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	session := env.completedSession(t, site.ID, "AB12CDE", baseTime, baseTime.Add(2*time.Hour))

	before, err := env.decisions.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, before.Outcome)

	// Payment record arrives after the decision was made.
	env.addPayment(t, site.ID, "AB12CDE", baseTime.Add(-time.Hour), baseTime.Add(6*time.Hour))

	result, err := env.reconciler.ReconcileForPayment(ctx, "AB12CDE", site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Updated)

	after, err := env.decisions.FindByID(ctx, before.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, after.Outcome)
	assert.Equal(t, domain.RuleValidPayment, after.RuleApplied)
	assert.Contains(t, after.Rationale, "reconciled after payment change")

	entries, err := env.audit.FindByEntity(ctx, "decision", after.ID)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditDecisionReconciled)
}

func TestReconcileLatePermit(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	session := env.completedSession(t, site.ID, "CD34EFG", baseTime, baseTime.Add(3*time.Hour))
	env.addPermit(t, &site.ID, "CD34EFG", baseTime.Add(-30*24*time.Hour))

	result, err := env.reconciler.ReconcileForPermit(ctx, "CD34EFG", &site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	decision, err := env.decisions.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, decision.Outcome)
	assert.Equal(t, domain.RuleValidPermit, decision.RuleApplied)
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	env.completedSession(t, site.ID, "EF56GHI", baseTime, baseTime.Add(2*time.Hour))
	env.addPayment(t, site.ID, "EF56GHI", baseTime.Add(-time.Hour), baseTime.Add(6*time.Hour))

	first, err := env.reconciler.ReconcileForPayment(ctx, "EF56GHI", site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)

	second, err := env.reconciler.ReconcileForPayment(ctx, "EF56GHI", site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Skipped)
}

func TestReconcileNeverTouchesFinalizedDecisions(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	session := env.completedSession(t, site.ID, "GH78JKL", baseTime, baseTime.Add(2*time.Hour))

	decision, err := env.decisions.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	reviewed, err := env.engine.ReviewDecision(ctx, decision.ID, domain.ReviewDecisionDTO{Approve: true}, "alice")
	require.NoError(t, err)
	require.True(t, reviewed.HumanFinalized())

	env.addPayment(t, site.ID, "GH78JKL", baseTime.Add(-time.Hour), baseTime.Add(6*time.Hour))

	result, err := env.reconciler.ReconcileForPayment(ctx, "GH78JKL", site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)

	after, err := env.decisions.FindByID(ctx, decision.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, after.Status)
	assert.Equal(t, domain.OutcomeEnforcementCandidate, after.Outcome)
}

func TestEvaluateOrphanSessions(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	// A completed session that slipped past the decision trigger.
	session := env.completedSession(t, site.ID, "JK90LMN", baseTime, baseTime.Add(2*time.Hour))
	decision, err := env.decisions.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)

	// Simulate the crash window by completing a session with no decision.
	env.ingest(t, site.ID, "LM12NOP", "ENTRY", baseTime)
	open, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "LM12NOP")
	require.NoError(t, err)
	open.Status = domain.SessionCompleted
	open.EndTime = session.EndTime
	open.DurationMinutes = session.DurationMinutes
	_, err = env.sessions.Update(ctx, open)
	require.NoError(t, err)

	result, err := env.reconciler.EvaluateOrphanSessions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Updated)

	orphanDecision, err := env.decisions.FindBySessionID(ctx, open.ID)
	require.NoError(t, err)
	assert.NotEqual(t, decision.ID, orphanDecision.ID)
	assert.Equal(t, domain.DecisionNew, orphanDecision.Status)
}
