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

func TestReapStaleInvalidatesOldOpenSessions(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	now := time.Now().UTC()
	env.ingest(t, site.ID, "AB12CDE", "ENTRY", now.Add(-48*time.Hour))
	env.ingest(t, site.ID, "CD34EFG", "ENTRY", now.Add(-1*time.Hour))

	stale, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)

	result, err := env.reaper.ReapStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Invalidated)

	after, err := env.sessions.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInvalid, after.Status)
	// No synthetic exit and no decision for an unobserved departure.
	assert.False(t, after.ExitMovementID.Valid)
	assert.False(t, after.EndTime.Valid)
	_, err = env.decisions.FindBySessionID(ctx, after.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The fresh session is untouched.
	fresh, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "CD34EFG")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProvisional, fresh.Status)
}

func TestReapStaleAuditsExpiry(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	env.ingest(t, site.ID, "AB12CDE", "ENTRY", time.Now().UTC().Add(-72*time.Hour))
	stale, err := env.sessions.FindOpenByVRMAndSite(ctx, site.ID, "AB12CDE")
	require.NoError(t, err)

	_, err = env.reaper.ReapStale(ctx, 24*time.Hour)
	require.NoError(t, err)

	entries, err := env.audit.FindByEntity(ctx, "session", stale.ID)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditSessionExpired)
}

func TestStaleSessionStatsBuckets(t *testing.T) {
	env := newTestEnv(t)
	site := env.mustCreateSite(t, domain.EnforcementAuto)
	ctx := context.Background()

	now := time.Now().UTC()
	env.ingest(t, site.ID, "AA11AAA", "ENTRY", now.Add(-1*time.Hour))
	env.ingest(t, site.ID, "BB22BBB", "ENTRY", now.Add(-36*time.Hour))
	env.ingest(t, site.ID, "CC33CCC", "ENTRY", now.Add(-4*24*time.Hour))
	env.ingest(t, site.ID, "DD44DDD", "ENTRY", now.Add(-10*24*time.Hour))

	stats, err := env.reaper.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Under24h)
	assert.Equal(t, 1, stats.From24To72h)
	assert.Equal(t, 1, stats.From72hTo7d)
	assert.Equal(t, 1, stats.Over7d)
	assert.Equal(t, 4, stats.Total)
}
