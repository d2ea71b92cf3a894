package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlipDirectionInvalidatesOwningSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	entry := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	session, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)

	flipped, err := env.correction.FlipDirection(ctx, entry.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionExit, flipped.Direction)

	after, err := env.sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInvalid, after.Status)
}

func TestFlipDirectionWithReprocessRebuildsCorrelation(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	// Mislabelled exit: it was actually an entry.
	exit := env.ingest(t, site.ID, "AB12CDE", "EXIT", baseTime)

	_, err := env.correction.FlipDirection(ctx, exit.ID, "alice", true)
	require.NoError(t, err)

	open, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, int64(exit.ID), open.EntryMovementID.Int64)
}

func TestSetDirectionResolvesUnknown(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	movement := env.ingest(t, site.ID, "AB12CDE", "", baseTime)

	updated, err := env.correction.SetDirection(ctx, movement.ID, domain.DirectionEntry, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionEntry, updated.Direction)

	open, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, int64(movement.ID), open.EntryMovementID.Int64)
}

func TestSetDirectionRejectsUnknown(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)

	movement := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)

	_, err := env.correction.SetDirection(context.Background(), movement.ID, domain.DirectionUnknown, "alice", false)
	assert.ErrorIs(t, err, ErrUnknownNotAllowed)
}

func TestDiscardEntryInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	entry := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	session, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)

	discarded, err := env.correction.Discard(ctx, entry.ID, "misread plate", "alice")
	require.NoError(t, err)
	assert.True(t, discarded.Discarded)
	assert.Equal(t, "misread plate", discarded.DiscardReason.String)
	assert.True(t, discarded.DiscardedAt.Valid)

	after, err := env.sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInvalid, after.Status)
}

func TestDiscardExitReopensSession(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	exit := env.ingest(t, site.ID, "AB12CDE", "EXIT", baseTime.Add(2*time.Hour))

	vrm := "AB12CDE"
	sessions, err := env.sessions.Find(ctx, domain.SessionFilterDTO{VRM: &vrm})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, domain.SessionCompleted, sessions[0].Status)

	_, err = env.correction.Discard(ctx, exit.ID, "wrong vehicle matched", "alice")
	require.NoError(t, err)

	after, err := env.sessions.FindByID(ctx, sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProvisional, after.Status)
	assert.False(t, after.ExitMovementID.Valid)
	assert.False(t, after.EndTime.Valid)
	assert.False(t, after.DurationMinutes.Valid)

	// The stay is open again, so a fresh exit can complete it.
	open, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, after.ID, open.ID)
}

func TestRestoreDoesNotResurrectSessions(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	entry := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	session, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)

	_, err = env.correction.Discard(ctx, entry.ID, "operator mistake", "alice")
	require.NoError(t, err)

	restored, err := env.correction.Restore(ctx, entry.ID, "alice")
	require.NoError(t, err)
	assert.False(t, restored.Discarded)
	assert.False(t, restored.DiscardReason.Valid)

	// The invalidated session stays invalid; rebuilding is a manual call.
	after, err := env.sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInvalid, after.Status)
}

func TestCorrectionInvariantConflicts(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	movement := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)

	_, err := env.correction.Restore(ctx, movement.ID, "alice")
	assert.ErrorIs(t, err, ErrNotDiscarded)

	_, err = env.correction.Discard(ctx, movement.ID, "bad read", "alice")
	require.NoError(t, err)

	_, err = env.correction.Discard(ctx, movement.ID, "again", "alice")
	assert.ErrorIs(t, err, ErrAlreadyDiscarded)

	_, err = env.correction.FlipDirection(ctx, movement.ID, "alice", false)
	assert.ErrorIs(t, err, ErrMovementDiscarded)

	_, err = env.correction.SetDirection(ctx, movement.ID, domain.DirectionExit, "alice", false)
	assert.ErrorIs(t, err, ErrMovementDiscarded)
}

func TestCorrectionsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	movement := env.ingest(t, site.ID, "AB12CDE", "ENTRY", baseTime)
	_, err := env.correction.Discard(ctx, movement.ID, "bad read", "alice")
	require.NoError(t, err)
	_, err = env.correction.Restore(ctx, movement.ID, "alice")
	require.NoError(t, err)

	entries, err := env.audit.FindByEntity(ctx, "movement", movement.ID)
	require.NoError(t, err)

	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditMovementDiscarded)
	assert.Contains(t, actions, domain.AuditMovementRestored)
}
