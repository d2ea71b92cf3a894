package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v4"
)

var stayStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
var stayEnd = stayStart.Add(2 * time.Hour)

func TestPermitCovers(t *testing.T) {
	permit := Permit{
		SiteID:    null.IntFrom(1),
		VRM:       "AB12CDE",
		Type:      PermitResident,
		StartDate: stayStart.Add(-24 * time.Hour),
		Active:    true,
	}

	assert.True(t, permit.Covers(1, stayStart, stayEnd))
	assert.False(t, permit.Covers(2, stayStart, stayEnd), "site-scoped permit must not cover another site")

	permit.SiteID = null.Int{}
	assert.True(t, permit.Covers(2, stayStart, stayEnd), "global permit covers any site")

	permit.Active = false
	assert.False(t, permit.Covers(1, stayStart, stayEnd))
	permit.Active = true

	permit.EndDate = null.TimeFrom(stayStart.Add(time.Hour))
	assert.False(t, permit.Covers(1, stayStart, stayEnd), "permit ending mid-stay does not cover it")

	permit.EndDate = null.TimeFrom(stayEnd)
	assert.True(t, permit.Covers(1, stayStart, stayEnd), "end date equal to stay end still covers")

	permit.StartDate = stayStart.Add(time.Minute)
	assert.False(t, permit.Covers(1, stayStart, stayEnd), "permit starting mid-stay does not cover it")
}

func TestPaymentCovers(t *testing.T) {
	payment := Payment{StartTime: stayStart, ExpiryTime: stayEnd}
	assert.True(t, payment.Covers(stayStart, stayEnd), "exact window covers")

	payment.ExpiryTime = stayEnd.Add(-time.Minute)
	assert.False(t, payment.Covers(stayStart, stayEnd), "expiring before stay end does not cover")

	payment.StartTime = stayStart.Add(time.Minute)
	payment.ExpiryTime = stayEnd.Add(time.Hour)
	assert.False(t, payment.Covers(stayStart, stayEnd), "starting after stay start does not cover")
}

func TestSiteTotalGraceMinutes(t *testing.T) {
	site := Site{}
	assert.Equal(t, int64(20), site.TotalGraceMinutes())

	site.EntryGraceMinutes = null.IntFrom(5)
	assert.Equal(t, int64(15), site.TotalGraceMinutes())

	site.ExitGraceMinutes = null.IntFrom(0)
	assert.Equal(t, int64(5), site.TotalGraceMinutes())
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionExit, DirectionEntry.Opposite())
	assert.Equal(t, DirectionEntry, DirectionExit.Opposite())
	assert.Equal(t, DirectionUnknown, DirectionUnknown.Opposite())
}

func TestDecisionHumanFinalized(t *testing.T) {
	d := Decision{Status: DecisionNew}
	assert.False(t, d.HumanFinalized())

	d.Status = DecisionCandidate
	assert.False(t, d.HumanFinalized())

	d.IsOperatorOverride = true
	assert.True(t, d.HumanFinalized(), "operator override locks the decision regardless of status")
	d.IsOperatorOverride = false

	for _, status := range []DecisionStatus{DecisionApproved, DecisionDeclined, DecisionExported} {
		d.Status = status
		assert.True(t, d.HumanFinalized(), string(status))
	}
}

func TestSessionOpen(t *testing.T) {
	s := Session{Status: SessionProvisional}
	assert.True(t, s.Open())

	s.ExitMovementID = null.IntFrom(7)
	assert.False(t, s.Open())

	s.ExitMovementID = null.Int{}
	s.Status = SessionInvalid
	assert.False(t, s.Open())
}
