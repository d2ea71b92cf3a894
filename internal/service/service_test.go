package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository/memory"

	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

// testEnv wires the full service graph over in-memory repositories.
type testEnv struct {
	movements  *memory.MovementRepository
	sessions   *memory.SessionRepository
	decisions  *memory.DecisionRepository
	permits    *memory.PermitRepository
	payments   *memory.PaymentRepository
	sites      *memory.SiteRepository
	cameras    *memory.CameraRepository
	audit      *memory.AuditLogRepository
	engine     *DecisionEngine
	correlator *CorrelationService
	correction *CorrectionService
	reconciler *ReconciliationService
	reaper     *ReaperService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		movements: memory.NewMovementRepository(),
		sessions:  memory.NewSessionRepository(),
		permits:   memory.NewPermitRepository(),
		payments:  memory.NewPaymentRepository(),
		sites:     memory.NewSiteRepository(),
		cameras:   memory.NewCameraRepository(),
		audit:     memory.NewAuditLogRepository(),
	}
	env.decisions = memory.NewDecisionRepository(env.sessions)
	env.engine = NewDecisionEngine(env.sessions, env.decisions, env.permits, env.payments, env.sites, env.audit, nil)
	env.correlator = NewCorrelationService(env.movements, env.sessions, env.sites, env.cameras, env.audit, env.engine)
	env.correction = NewCorrectionService(env.movements, env.sessions, env.audit, env.correlator)
	env.reconciler = NewReconciliationService(env.sessions, env.decisions, env.audit, env.engine)
	env.reaper = NewReaperService(env.sessions, env.audit)
	return env
}

func (env *testEnv) mustCreateSite(t *testing.T, enforcement domain.EnforcementType) *domain.Site {
	t.Helper()
	site, err := env.sites.Create(context.Background(), &domain.Site{
		Name:            "Test Car Park",
		EnforcementType: enforcement,
	})
	require.NoError(t, err)
	return site
}

func (env *testEnv) ingest(t *testing.T, siteID int, vrm, direction string, at time.Time) *domain.Movement {
	t.Helper()
	movement, err := env.correlator.IngestMovement(context.Background(), domain.CreateMovementDTO{
		SiteID:    siteID,
		VRM:       vrm,
		Timestamp: at.Format(time.RFC3339),
		CameraIDs: []string{"cam-1"},
		Direction: direction,
	})
	require.NoError(t, err)
	return movement
}

func (env *testEnv) completedSession(t *testing.T, siteID int, vrm string, start, end time.Time) *domain.Session {
	t.Helper()
	env.ingest(t, siteID, vrm, "ENTRY", start)
	env.ingest(t, siteID, vrm, "EXIT", end)
	sessions, err := env.sessions.Find(context.Background(), domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	require.NotEmpty(t, sessions)
	last := sessions[len(sessions)-1]
	require.Equal(t, domain.SessionCompleted, last.Status)
	return &last
}

func (env *testEnv) addPermit(t *testing.T, siteID *int, vrm string, from time.Time) *domain.Permit {
	t.Helper()
	permit := &domain.Permit{
		VRM:       domain.NormalizeVRM(vrm),
		Type:      domain.PermitResident,
		StartDate: from,
		Active:    true,
	}
	if siteID != nil {
		permit.SiteID = null.IntFrom(int64(*siteID))
	}
	created, err := env.permits.Create(context.Background(), permit)
	require.NoError(t, err)
	return created
}

func (env *testEnv) addPayment(t *testing.T, siteID int, vrm string, from, until time.Time) *domain.Payment {
	t.Helper()
	created, err := env.payments.Create(context.Background(), &domain.Payment{
		SiteID:     siteID,
		VRM:        domain.NormalizeVRM(vrm),
		Amount:     4.50,
		StartTime:  from,
		ExpiryTime: until,
		Source:     "app",
	})
	require.NoError(t, err)
	return created
}
