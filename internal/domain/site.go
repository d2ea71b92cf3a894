package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// EnforcementType is the site-level policy switch controlling which decision
// checks run and which default rule fires.
type EnforcementType string

const (
	EnforcementAuto          EnforcementType = "auto"
	EnforcementPayAndDisplay EnforcementType = "pay_and_display"
	EnforcementPermitOnly    EnforcementType = "permit_only"
	EnforcementMixed         EnforcementType = "mixed"
)

func (t EnforcementType) Valid() bool {
	switch t {
	case EnforcementAuto, EnforcementPayAndDisplay, EnforcementPermitOnly, EnforcementMixed:
		return true
	}
	return false
}

const DefaultGraceMinutes = 10

// Site is one monitored car park.
type Site struct {
	ID                int             `json:"id"`
	Name              string          `json:"name"`
	Address           string          `json:"address,omitempty"`
	EnforcementType   EnforcementType `json:"enforcement_type"`
	EntryGraceMinutes null.Int        `json:"entry_grace_minutes,omitempty"`
	ExitGraceMinutes  null.Int        `json:"exit_grace_minutes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TotalGraceMinutes is the combined entry+exit grace window, each side
// defaulting to DefaultGraceMinutes when unset.
func (s *Site) TotalGraceMinutes() int64 {
	entry := int64(DefaultGraceMinutes)
	if s.EntryGraceMinutes.Valid {
		entry = s.EntryGraceMinutes.Int64
	}
	exit := int64(DefaultGraceMinutes)
	if s.ExitGraceMinutes.Valid {
		exit = s.ExitGraceMinutes.Int64
	}
	return entry + exit
}

type SiteDTO struct {
	Name              string `json:"name" binding:"required"`
	Address           string `json:"address"`
	EnforcementType   string `json:"enforcement_type"`
	EntryGraceMinutes *int   `json:"entry_grace_minutes"`
	ExitGraceMinutes  *int   `json:"exit_grace_minutes"`
}
