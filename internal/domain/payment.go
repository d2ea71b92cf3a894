package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// Payment is evidence of a parking fee paid for a time window at a site.
type Payment struct {
	ID          int         `json:"id"`
	SiteID      int         `json:"site_id"`
	VRM         string      `json:"vrm"`
	Amount      float64     `json:"amount"`
	StartTime   time.Time   `json:"start_time"`
	ExpiryTime  time.Time   `json:"expiry_time"`
	Source      string      `json:"source"`
	ExternalRef null.String `json:"external_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Covers reports whether the payment window contains the [start, end] stay
// interval: it must start no later than the stay start and expire no earlier
// than the stay end.
func (p *Payment) Covers(start, end time.Time) bool {
	return !p.StartTime.After(start) && !p.ExpiryTime.Before(end)
}

type CreatePaymentDTO struct {
	SiteID      int     `json:"site_id" binding:"required"`
	VRM         string  `json:"vrm" binding:"required"`
	Amount      float64 `json:"amount"`
	StartTime   string  `json:"start_time" binding:"required"`
	ExpiryTime  string  `json:"expiry_time" binding:"required"`
	Source      string  `json:"source"`
	ExternalRef string  `json:"external_ref"`
}
