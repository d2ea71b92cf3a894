package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestEntryOpensSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	movement := env.ingest(t, site.ID, "ab12 cde", "ENTRY", baseTime)
	assert.Equal(t, "AB12CDE", movement.VRM)
	assert.NotEmpty(t, movement.EventID)

	session, err := env.sessions.FindOpenByVRMAndSite(context.Background(), site.ID, "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProvisional, session.Status)
	assert.Equal(t, int64(movement.ID), session.EntryMovementID.Int64)
	assert.Equal(t, baseTime, session.StartTime)
}

func TestIngestExitCompletesSessionAndDecides(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	exit := env.ingest(t, site.ID, "AB12CDE", "EXIT", baseTime.Add(2*time.Hour))

	vrm := "AB12CDE"
	sessions, err := env.sessions.Find(context.Background(), domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	session := sessions[0]
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.Equal(t, int64(exit.ID), session.ExitMovementID.Int64)
	assert.Equal(t, int64(120), session.DurationMinutes.Int64)

	decision, err := env.decisions.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionNew, decision.Status)
}

func TestIngestRejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	_, err := env.correlator.IngestMovement(ctx, domain.CreateMovementDTO{
		SiteID: site.ID, VRM: "   ", Timestamp: baseTime.Format(time.RFC3339),
	})
	assert.ErrorIs(t, err, ErrInvalidVRM)

	_, err = env.correlator.IngestMovement(ctx, domain.CreateMovementDTO{
		SiteID: site.ID, VRM: "AB12CDE", Timestamp: "10/03/2025 09:00",
	})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	_, err = env.correlator.IngestMovement(ctx, domain.CreateMovementDTO{
		SiteID: site.ID, VRM: "AB12CDE", Timestamp: baseTime.Format(time.RFC3339), Direction: "SIDEWAYS",
	})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = env.correlator.IngestMovement(ctx, domain.CreateMovementDTO{
		SiteID: 999, VRM: "AB12CDE", Timestamp: baseTime.Format(time.RFC3339),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDuplicateEntryFlagsNewMovement(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	first, err := env.sessions.FindOpenByVRMAndSite(context.Background(), site.ID, "AB12CDE")
	require.NoError(t, err)

	second := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime.Add(time.Hour))
	assert.True(t, second.RequiresReview)

	// The original session is untouched and still the only open one.
	stillOpen, err := env.sessions.FindOpenByVRMAndSite(context.Background(), site.ID, "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stillOpen.ID)

	vrm := "AB12CDE"
	sessions, err := env.sessions.Find(context.Background(), domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestOrphanExitRecordsInvalidSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	exit := env.ingest(t, site.ID, "AB12CDE", "EXIT", baseTime)

	vrm := "AB12CDE"
	sessions, err := env.sessions.Find(context.Background(), domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	session := sessions[0]
	assert.Equal(t, domain.SessionInvalid, session.Status)
	assert.False(t, session.EntryMovementID.Valid)
	assert.Equal(t, int64(exit.ID), session.ExitMovementID.Int64)
	assert.Equal(t, int64(0), session.DurationMinutes.Int64)

	// Invalid sessions never get decisions.
	_, err = env.decisions.FindBySessionID(context.Background(), session.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUnknownDirectionWaitsForAssignment(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	movement := env.ingest(t, site.ID, "AB12CDE", "", baseTime)
	assert.Equal(t, domain.DirectionUnknown, movement.Direction)

	_, err := env.sessions.FindOpenByVRMAndSite(context.Background(), site.ID, "AB12CDE")
	assert.ErrorIs(t, err, repository.ErrNoOpenSession)
}

func TestExitBeforeEntryClampsDuration(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	// Clock skew: the exit camera reports a timestamp before the entry.
	env.ingest(t, site.ID, "AB12CDE", "EXIT", baseTime.Add(-5*time.Minute))

	vrm := "AB12CDE"
	sessions, err := env.sessions.Find(context.Background(), domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	session := sessions[0]
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.Equal(t, int64(0), session.DurationMinutes.Int64)
	assert.Equal(t, session.StartTime, session.EndTime.Time)
}

func TestSameVRMDifferentSitesCorrelateIndependently(t *testing.T) {
	env := newTestEnv(t)
	siteA := env.mustCreateSite(t, domain.EnforcementAuto)
	siteB := env.mustCreateSite(t, domain.EnforcementAuto)

	env.ingest(t, siteA.ID, "AB12CDE", "ENTRY", baseTime)
	env.ingest(t, siteB.ID, "AB12CDE", "ENTRY", baseTime.Add(time.Minute))

	openA, err := env.sessions.FindOpenByVRMAndSite(context.Background(), siteA.ID, "AB12CDE")
	require.NoError(t, err)
	openB, err := env.sessions.FindOpenByVRMAndSite(context.Background(), siteB.ID, "AB12CDE")
	require.NoError(t, err)
	assert.NotEqual(t, openA.ID, openB.ID)
}

func TestIngestTracksCameraLastSeen(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)

	camera, err := env.cameras.FindByCameraID(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CameraOnline, camera.Status)
	assert.Equal(t, baseTime, camera.LastSeenAt.Time)
}

func TestNormalizeVRM(t *testing.T) {
	assert.Equal(t, "AB12CDE", domain.NormalizeVRM("ab12 cde"))
	assert.Equal(t, "AB12CDE", domain.NormalizeVRM(" AB12CDE "))
	assert.Equal(t, "AB12CDE", domain.NormalizeVRM("a b 1 2 c d e"))
	assert.Equal(t, "", domain.NormalizeVRM("   "))
}
