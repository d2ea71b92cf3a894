package repository

import (
	"context"
	"errors"
	"time"

	"parking_enforcement/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")
var ErrNoOpenSession = errors.New("no open parking session for the given vehicle and site")

// ErrOpenSessionExists is returned when creating an open session would
// violate the one-open-session-per-(VRM, site) constraint. The database
// enforces this with a partial unique index, so concurrent writers cannot
// race past the application-level lookup.
var ErrOpenSessionExists = errors.New("an open parking session already exists for this vehicle and site")

// ErrDecisionFinalized is returned when a guarded decision overwrite touches
// zero rows because the decision was human-finalized in the meantime.
var ErrDecisionFinalized = errors.New("decision has been finalized by an operator")

type MovementRepository interface {
	Create(ctx context.Context, m *domain.Movement) (*domain.Movement, error)
	FindByID(ctx context.Context, id int) (*domain.Movement, error)
	FindByEventID(ctx context.Context, eventID string) (*domain.Movement, error)
	Update(ctx context.Context, m *domain.Movement) (*domain.Movement, error)
	FindRequiringReview(ctx context.Context, limit int) ([]domain.Movement, error)
}

type SessionRepository interface {
	// Create persists a new session. Creating a second open session for the
	// same (VRM, site) returns ErrOpenSessionExists.
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	FindByID(ctx context.Context, id int) (*domain.Session, error)
	// FindOpenByVRMAndSite returns the most recent provisional session with
	// no exit reference, or ErrNoOpenSession.
	FindOpenByVRMAndSite(ctx context.Context, siteID int, vrm string) (*domain.Session, error)
	FindByEntryMovementID(ctx context.Context, movementID int) ([]domain.Session, error)
	FindByExitMovementID(ctx context.Context, movementID int) ([]domain.Session, error)
	Update(ctx context.Context, s *domain.Session) (*domain.Session, error)
	Find(ctx context.Context, filter domain.SessionFilterDTO) ([]domain.Session, error)
	FindOpenBySite(ctx context.Context, siteID int) ([]domain.Session, error)
	// FindStaleOpen returns open provisional sessions whose start time is
	// older than the cutoff, oldest first.
	FindStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error)
	// FindCompletedWithoutDecision supports orphan-session recovery.
	FindCompletedWithoutDecision(ctx context.Context, limit int) ([]domain.Session, error)
	StaleStats(ctx context.Context, now time.Time) (*domain.StaleSessionStats, error)
}

type DecisionRepository interface {
	Create(ctx context.Context, d *domain.Decision) (*domain.Decision, error)
	FindByID(ctx context.Context, id int) (*domain.Decision, error)
	FindBySessionID(ctx context.Context, sessionID int) (*domain.Decision, error)
	// FindReconciliationCandidates returns decisions with status NEW or
	// CANDIDATE and no operator override, joined to completed sessions for
	// the VRM (and site when siteID is non-nil).
	FindReconciliationCandidates(ctx context.Context, vrm string, siteID *int) ([]domain.Decision, error)
	// UpdateOutcomeGuarded rewrites outcome, rule, rationale and params, but
	// only while the decision is still automatable: the WHERE clause
	// re-checks status IN (NEW, CANDIDATE) AND NOT is_operator_override at
	// write time. Returns ErrDecisionFinalized when no row qualifies.
	UpdateOutcomeGuarded(ctx context.Context, d *domain.Decision) (*domain.Decision, error)
	// UpdateReview applies a human review verdict (status, override flag,
	// operator, rationale).
	UpdateReview(ctx context.Context, d *domain.Decision) (*domain.Decision, error)
	Find(ctx context.Context, filter domain.DecisionFilterDTO) ([]domain.Decision, error)
}

type PermitRepository interface {
	Create(ctx context.Context, p *domain.Permit) (*domain.Permit, error)
	FindByID(ctx context.Context, id int) (*domain.Permit, error)
	// FindActiveForVRM returns active permits for the VRM scoped to the site
	// or global (site IS NULL).
	FindActiveForVRM(ctx context.Context, vrm string, siteID int) ([]domain.Permit, error)
	Update(ctx context.Context, p *domain.Permit) (*domain.Permit, error)
	Delete(ctx context.Context, id int) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	FindByID(ctx context.Context, id int) (*domain.Payment, error)
	FindByVRMAndSite(ctx context.Context, vrm string, siteID int) ([]domain.Payment, error)
	Delete(ctx context.Context, id int) error
}

type SiteRepository interface {
	Create(ctx context.Context, s *domain.Site) (*domain.Site, error)
	FindByID(ctx context.Context, id int) (*domain.Site, error)
	FindAll(ctx context.Context) ([]domain.Site, error)
	Update(ctx context.Context, s *domain.Site) (*domain.Site, error)
	Delete(ctx context.Context, id int) error
}

type CameraRepository interface {
	CreateOrUpdate(ctx context.Context, c *domain.Camera) (*domain.Camera, error)
	FindByCameraID(ctx context.Context, cameraID string) (*domain.Camera, error)
	FindAll(ctx context.Context) ([]domain.Camera, error)
	NoteSeen(ctx context.Context, cameraID string, siteID int, seenAt time.Time) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, e *domain.AuditEntry) error
	FindByEntity(ctx context.Context, entityType string, entityID int) ([]domain.AuditEntry, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}
