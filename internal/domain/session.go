package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type SessionStatus string

const (
	SessionProvisional SessionStatus = "PROVISIONAL"
	SessionCompleted   SessionStatus = "COMPLETED"
	SessionInvalid     SessionStatus = "INVALID"
)

// Session is one continuous parking stay for a VRM at a site, built from an
// entry movement and (eventually) an exit movement. Sessions are never
// deleted, only status-transitioned.
type Session struct {
	ID              int           `json:"id"`
	SiteID          int           `json:"site_id"`
	VRM             string        `json:"vrm"`
	EntryMovementID null.Int      `json:"entry_movement_id,omitempty"`
	ExitMovementID  null.Int      `json:"exit_movement_id,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         null.Time     `json:"end_time,omitempty"`
	DurationMinutes null.Int      `json:"duration_minutes,omitempty"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Open reports whether the session is still waiting for an exit movement.
func (s *Session) Open() bool {
	return s.Status == SessionProvisional && !s.ExitMovementID.Valid
}

type SessionFilterDTO struct {
	SiteID *int    `form:"siteId"`
	VRM    *string `form:"vrm"`
	Status *string `form:"status"`
}

// StaleSessionStats buckets open provisional sessions by age for capacity
// and anomaly monitoring. Read-only, never mutates state.
type StaleSessionStats struct {
	Under24h    int `json:"under_24h"`
	From24To72h int `json:"from_24_to_72h"`
	From72hTo7d int `json:"from_72h_to_7d"`
	Over7d      int `json:"over_7d"`
	Total       int `json:"total"`
}
