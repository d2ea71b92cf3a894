package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestDecideSessionPermitHolder(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	env.addPermit(t, &site.ID, "AB12CDE", baseTime.Add(-30*24*time.Hour))

	session := env.completedSession(t, site.ID, "AB12CDE", baseTime, baseTime.Add(3*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, decision.Outcome)
	assert.Equal(t, domain.RuleValidPermit, decision.RuleApplied)
	assert.Equal(t, domain.DecisionNew, decision.Status)
}

func TestDecideSessionPaidStay(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	env.addPayment(t, site.ID, "CD34EFG", baseTime.Add(-10*time.Minute), baseTime.Add(4*time.Hour))

	session := env.completedSession(t, site.ID, "CD34EFG", baseTime, baseTime.Add(2*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, decision.Outcome)
	assert.Equal(t, domain.RuleValidPayment, decision.RuleApplied)
}

func TestDecideSessionPaymentTooShort(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	// Payment expires an hour before the stay ends.
	env.addPayment(t, site.ID, "EF56GHI", baseTime, baseTime.Add(1*time.Hour))

	session := env.completedSession(t, site.ID, "EF56GHI", baseTime, baseTime.Add(2*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEnforcementCandidate, decision.Outcome)
	assert.Equal(t, domain.RuleNoValidPayment, decision.RuleApplied)
}

func TestDecideSessionWithinGrace(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	// Default grace is 10 entry + 10 exit minutes.
	session := env.completedSession(t, site.ID, "GH78JKL", baseTime, baseTime.Add(15*time.Minute))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, decision.Outcome)
	assert.Equal(t, domain.RuleWithinGrace, decision.RuleApplied)
}

func TestDecideSessionNoEvidence(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	session := env.completedSession(t, site.ID, "JK90LMN", baseTime, baseTime.Add(5*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEnforcementCandidate, decision.Outcome)
	assert.Equal(t, domain.RuleNoValidPayment, decision.RuleApplied)
}

func TestDecidePermitOnlySiteSkipsPayments(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementPermitOnly)
	// A payment must not save a stay at a permit-only site.
	env.addPayment(t, site.ID, "LM12NOP", baseTime.Add(-time.Hour), baseTime.Add(6*time.Hour))

	session := env.completedSession(t, site.ID, "LM12NOP", baseTime, baseTime.Add(2*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEnforcementCandidate, decision.Outcome)
	assert.Equal(t, domain.RuleUnauthorisedParking, decision.RuleApplied)
}

func TestDecidePayAndDisplaySiteSkipsPermits(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementPayAndDisplay)
	env.addPermit(t, &site.ID, "NO34PQR", baseTime.Add(-30*24*time.Hour))

	session := env.completedSession(t, site.ID, "NO34PQR", baseTime, baseTime.Add(2*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEnforcementCandidate, decision.Outcome)
	assert.Equal(t, domain.RuleNoValidPayment, decision.RuleApplied)
}

func TestGlobalPermitCoversAnySite(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	env.addPermit(t, nil, "PQ56RST", baseTime.Add(-30*24*time.Hour))

	session := env.completedSession(t, site.ID, "PQ56RST", baseTime, baseTime.Add(4*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompliant, decision.Outcome)
	assert.Equal(t, domain.RuleValidPermit, decision.RuleApplied)
}

func TestDecideSessionExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	session := env.completedSession(t, site.ID, "RS78TUV", baseTime, baseTime.Add(2*time.Hour))

	_, err := env.engine.DecideSession(context.Background(), session)
	assert.ErrorIs(t, err, ErrDecisionAlreadyExists)

	decisions, err := env.decisions.Find(context.Background(), domain.DecisionFilterDTO{})
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	env.addPayment(t, site.ID, "TU90VWX", baseTime.Add(-time.Hour), baseTime.Add(6*time.Hour))
	session := env.completedSession(t, site.ID, "TU90VWX", baseTime, baseTime.Add(2*time.Hour))

	first, err := env.engine.Evaluate(context.Background(), session)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		verdict, err := env.engine.Evaluate(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, first.Outcome, verdict.Outcome)
		assert.Equal(t, first.Rule, verdict.Rule)
	}
}

func TestEvaluateRejectsOpenSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	env.ingest(t, site.ID, "VW12XYZ", "ENTRY", baseTime)

	open, err := env.sessions.FindOpenByVRMAndSite(context.Background(), site.ID, "VW12XYZ")
	require.NoError(t, err)

	_, err = env.engine.Evaluate(context.Background(), open)
	assert.ErrorIs(t, err, ErrSessionNotCompleted)
}

func TestReviewDecisionApproveWithOverride(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	session := env.completedSession(t, site.ID, "XY34ZAB", baseTime, baseTime.Add(3*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)

	reviewed, err := env.engine.ReviewDecision(context.Background(), decision.ID, domain.ReviewDecisionDTO{
		Approve:         true,
		OverrideOutcome: string(domain.OutcomeCompliant),
		Note:            "driver produced a valid ticket",
	}, "alice")
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApproved, reviewed.Status)
	assert.Equal(t, domain.OutcomeCompliant, reviewed.Outcome)
	assert.Equal(t, domain.RuleOperatorOverride, reviewed.RuleApplied)
	assert.True(t, reviewed.IsOperatorOverride)
	assert.True(t, reviewed.HumanFinalized())
	assert.Equal(t, "alice", reviewed.OperatorID.String)
}

func TestReviewDecisionRejectsInvalidOverride(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	session := env.completedSession(t, site.ID, "ZA56BCD", baseTime, baseTime.Add(3*time.Hour))

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)

	_, err = env.engine.ReviewDecision(context.Background(), decision.ID, domain.ReviewDecisionDTO{
		Approve:         true,
		OverrideOutcome: "NOT_AN_OUTCOME",
	}, "alice")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}
