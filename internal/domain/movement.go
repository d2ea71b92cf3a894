package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

type MovementDirection string

const (
	DirectionEntry   MovementDirection = "ENTRY"
	DirectionExit    MovementDirection = "EXIT"
	DirectionUnknown MovementDirection = "UNKNOWN"
)

func (d MovementDirection) Valid() bool {
	switch d {
	case DirectionEntry, DirectionExit, DirectionUnknown:
		return true
	}
	return false
}

// Opposite returns the flipped direction. UNKNOWN has no opposite and is
// returned unchanged; callers resolve UNKNOWN via an explicit assignment.
func (d MovementDirection) Opposite() MovementDirection {
	switch d {
	case DirectionEntry:
		return DirectionExit
	case DirectionExit:
		return DirectionEntry
	}
	return d
}

// Movement is one observed plate read at a camera. Created once at
// ingestion; only the direction and the discarded/review flags are mutable
// afterwards. Never deleted.
type Movement struct {
	ID             int               `json:"id"`
	EventID        string            `json:"event_id"`
	SiteID         int               `json:"site_id"`
	VRM            string            `json:"vrm"`
	Timestamp      time.Time         `json:"timestamp"`
	CameraIDs      []string          `json:"camera_ids"`
	Direction      MovementDirection `json:"direction"`
	ImageRefs      []string          `json:"image_refs,omitempty"`
	RawPayload     json.RawMessage   `json:"raw_payload,omitempty"`
	Discarded      bool              `json:"discarded"`
	DiscardReason  null.String       `json:"discard_reason,omitempty"`
	DiscardedAt    null.Time         `json:"discarded_at,omitempty"`
	RequiresReview bool              `json:"requires_review"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NormalizeVRM uppercases a plate and strips all whitespace, so "ab12 cde"
// and "AB12CDE" correlate to the same vehicle.
func NormalizeVRM(vrm string) string {
	return strings.ToUpper(strings.Join(strings.Fields(vrm), ""))
}

type CreateMovementDTO struct {
	SiteID     int             `json:"site_id" binding:"required"`
	VRM        string          `json:"vrm" binding:"required"`
	Timestamp  string          `json:"timestamp" binding:"required"`
	CameraIDs  []string        `json:"camera_ids"`
	Direction  string          `json:"direction"`
	ImageRefs  []string        `json:"image_refs"`
	RawPayload json.RawMessage `json:"raw_payload"`
}

type DiscardMovementDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type SetDirectionDTO struct {
	Direction string `json:"direction" binding:"required"`
	Reprocess bool   `json:"reprocess"`
}

type FlipDirectionDTO struct {
	Reprocess bool `json:"reprocess"`
}
