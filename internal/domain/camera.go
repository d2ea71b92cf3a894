package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type CameraStatus string

const (
	CameraOnline  CameraStatus = "online"
	CameraOffline CameraStatus = "offline"
	CameraError   CameraStatus = "error"
)

// Camera is an ANPR camera known to the system. The registry is maintained
// passively from movement ingestion (last-seen tracking); the engine never
// talks to camera hardware.
type Camera struct {
	ID         int          `json:"id"`
	CameraID   string       `json:"camera_id"`
	SiteID     null.Int     `json:"site_id,omitempty"`
	Model      string       `json:"model,omitempty"`
	Status     CameraStatus `json:"status"`
	LastSeenAt null.Time    `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
