package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type PermitType string

const (
	PermitWhitelist  PermitType = "whitelist"
	PermitResident   PermitType = "resident"
	PermitStaff      PermitType = "staff"
	PermitContractor PermitType = "contractor"
)

// Permit authorizes a VRM to park without payment. A null SiteID means the
// permit applies to every site. Overlapping permits for the same VRM are
// allowed; evaluation only needs one active match covering the stay.
type Permit struct {
	ID        int        `json:"id"`
	SiteID    null.Int   `json:"site_id,omitempty"`
	VRM       string     `json:"vrm"`
	Type      PermitType `json:"type"`
	StartDate time.Time  `json:"start_date"`
	EndDate   null.Time  `json:"end_date,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Covers reports whether the permit is active and its validity window
// contains the [start, end] stay interval. A null EndDate is indefinite.
func (p *Permit) Covers(siteID int, start, end time.Time) bool {
	if !p.Active {
		return false
	}
	if p.SiteID.Valid && int(p.SiteID.Int64) != siteID {
		return false
	}
	if p.StartDate.After(start) {
		return false
	}
	if p.EndDate.Valid && p.EndDate.Time.Before(end) {
		return false
	}
	return true
}

type CreatePermitDTO struct {
	SiteID    *int   `json:"site_id"`
	VRM       string `json:"vrm" binding:"required"`
	Type      string `json:"type" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date"`
	Active    *bool  `json:"active"`
}
