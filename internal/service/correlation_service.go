package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"
)

var ErrInvalidVRM = errors.New("vrm is required")
var ErrInvalidTimestamp = errors.New("timestamp is missing or unparseable")
var ErrInvalidDirection = errors.New("invalid movement direction")

// CorrelationService maintains the mapping between stays and sessions as
// movements arrive. It owns the correlate → decide → audit pipeline for one
// movement at a time; cross-VRM calls may run concurrently and rely on the
// store's open-session uniqueness constraint.
type CorrelationService struct {
	movementRepo repository.MovementRepository
	sessionRepo  repository.SessionRepository
	siteRepo     repository.SiteRepository
	cameraRepo   repository.CameraRepository
	auditRepo    repository.AuditLogRepository
	engine       *DecisionEngine
}

func NewCorrelationService(
	movementRepo repository.MovementRepository,
	sessionRepo repository.SessionRepository,
	siteRepo repository.SiteRepository,
	cameraRepo repository.CameraRepository,
	auditRepo repository.AuditLogRepository,
	engine *DecisionEngine,
) *CorrelationService {
	return &CorrelationService{
		movementRepo: movementRepo,
		sessionRepo:  sessionRepo,
		siteRepo:     siteRepo,
		cameraRepo:   cameraRepo,
		auditRepo:    auditRepo,
		engine:       engine,
	}
}

// IngestMovement validates, persists and correlates one raw plate read.
// Malformed input is rejected before anything is persisted.
func (s *CorrelationService) IngestMovement(ctx context.Context, dto domain.CreateMovementDTO) (*domain.Movement, error) {
	vrm := domain.NormalizeVRM(dto.VRM)
	if vrm == "" {
		return nil, ErrInvalidVRM
	}

	timestamp, err := parseTimestamp(dto.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, dto.Timestamp)
	}

	direction := domain.DirectionUnknown
	if dto.Direction != "" {
		direction = domain.MovementDirection(dto.Direction)
		if !direction.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dto.Direction)
		}
	}

	if _, err := s.siteRepo.FindByID(ctx, dto.SiteID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: site %d", repository.ErrNotFound, dto.SiteID)
		}
		return nil, fmt.Errorf("checking site %d: %w", dto.SiteID, err)
	}

	movement := &domain.Movement{
		EventID:    uuid.NewString(),
		SiteID:     dto.SiteID,
		VRM:        vrm,
		Timestamp:  timestamp,
		CameraIDs:  dto.CameraIDs,
		Direction:  direction,
		ImageRefs:  dto.ImageRefs,
		RawPayload: dto.RawPayload,
	}

	created, err := s.movementRepo.Create(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("persisting movement: %w", err)
	}

	// Last-seen tracking for the camera registry; failures never block
	// correlation.
	for _, cameraID := range created.CameraIDs {
		if err := s.cameraRepo.NoteSeen(ctx, cameraID, created.SiteID, created.Timestamp); err != nil {
			log.Printf("camera last-seen update failed for %s: %v", cameraID, err)
		}
	}

	if err := s.ProcessMovement(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// ProcessMovement runs the correlation state machine for one persisted
// movement. Discarded and UNKNOWN-direction movements are left alone; the
// latter wait for a manual direction assignment.
func (s *CorrelationService) ProcessMovement(ctx context.Context, m *domain.Movement) error {
	if m.Discarded {
		log.Printf("movement %d is discarded, skipping correlation", m.ID)
		return nil
	}

	switch m.Direction {
	case domain.DirectionEntry:
		return s.processEntry(ctx, m)
	case domain.DirectionExit:
		return s.processExit(ctx, m)
	case domain.DirectionUnknown:
		log.Printf("movement %d has unknown direction, awaiting manual assignment", m.ID)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDirection, m.Direction)
}

func (s *CorrelationService) processEntry(ctx context.Context, m *domain.Movement) error {
	existing, err := s.sessionRepo.FindOpenByVRMAndSite(ctx, m.SiteID, m.VRM)
	if err != nil && !errors.Is(err, repository.ErrNoOpenSession) {
		return fmt.Errorf("looking up open session for %s at site %d: %w", m.VRM, m.SiteID, err)
	}

	if existing != nil {
		// Policy: a second unmatched entry never creates a sibling open
		// session and never invalidates the prior one on raw sensor input
		// alone. The new entry is flagged for review; the stale session
		// falls to the reaper or an operator.
		return s.flagDuplicateEntry(ctx, m, existing)
	}

	session := &domain.Session{
		SiteID:          m.SiteID,
		VRM:             m.VRM,
		EntryMovementID: null.IntFrom(int64(m.ID)),
		StartTime:       m.Timestamp,
		Status:          domain.SessionProvisional,
	}
	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrOpenSessionExists) {
			// Lost the find-or-create race to a concurrent entry; treat the
			// movement as a duplicate entry.
			winner, findErr := s.sessionRepo.FindOpenByVRMAndSite(ctx, m.SiteID, m.VRM)
			if findErr != nil {
				return fmt.Errorf("resolving open-session conflict for %s: %w", m.VRM, findErr)
			}
			return s.flagDuplicateEntry(ctx, m, winner)
		}
		return fmt.Errorf("creating session for %s at site %d: %w", m.VRM, m.SiteID, err)
	}

	log.Printf("Opened session %d for %s at site %d (entry movement %d)", created.ID, m.VRM, m.SiteID, m.ID)
	s.recordAudit(ctx, "session", created.ID, domain.AuditSessionCreated, "system", map[string]interface{}{
		"vrm":               m.VRM,
		"site_id":           m.SiteID,
		"entry_movement_id": m.ID,
	})
	return nil
}

func (s *CorrelationService) flagDuplicateEntry(ctx context.Context, m *domain.Movement, open *domain.Session) error {
	m.RequiresReview = true
	if _, err := s.movementRepo.Update(ctx, m); err != nil {
		return fmt.Errorf("flagging duplicate entry movement %d: %w", m.ID, err)
	}
	log.Printf("Entry movement %d for %s at site %d overlaps open session %d, flagged for review",
		m.ID, m.VRM, m.SiteID, open.ID)
	s.recordAudit(ctx, "movement", m.ID, domain.AuditMovementDuplicateEntry, "system", map[string]interface{}{
		"open_session_id": open.ID,
		"vrm":             m.VRM,
		"site_id":         m.SiteID,
	})
	return nil
}

func (s *CorrelationService) processExit(ctx context.Context, m *domain.Movement) error {
	session, err := s.sessionRepo.FindOpenByVRMAndSite(ctx, m.SiteID, m.VRM)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenSession) {
			return s.recordOrphanExit(ctx, m)
		}
		return fmt.Errorf("looking up open session for %s at site %d: %w", m.VRM, m.SiteID, err)
	}

	endTime := m.Timestamp
	if endTime.Before(session.StartTime) {
		// The cameras disagree about ordering; clamp rather than produce a
		// negative duration.
		log.Printf("Exit movement %d precedes session %d start, clamping end time", m.ID, session.ID)
		endTime = session.StartTime
	}

	session.ExitMovementID = null.IntFrom(int64(m.ID))
	session.EndTime = null.TimeFrom(endTime)
	session.DurationMinutes = null.IntFrom(roundMinutes(endTime.Sub(session.StartTime)))
	session.Status = domain.SessionCompleted

	updated, err := s.sessionRepo.Update(ctx, session)
	if err != nil {
		return fmt.Errorf("completing session %d: %w", session.ID, err)
	}
	log.Printf("Completed session %d for %s at site %d: %d minutes",
		updated.ID, m.VRM, m.SiteID, updated.DurationMinutes.Int64)
	s.recordAudit(ctx, "session", updated.ID, domain.AuditSessionCompleted, "system", map[string]interface{}{
		"exit_movement_id": m.ID,
		"duration_minutes": updated.DurationMinutes.Int64,
	})

	if _, err := s.engine.DecideSession(ctx, updated); err != nil {
		if errors.Is(err, ErrDecisionAlreadyExists) {
			return nil
		}
		return fmt.Errorf("deciding session %d: %w", updated.ID, err)
	}
	return nil
}

// recordOrphanExit preserves an exit with no matching open session as an
// entry-less INVALID session so the evidence stays queryable.
func (s *CorrelationService) recordOrphanExit(ctx context.Context, m *domain.Movement) error {
	session := &domain.Session{
		SiteID:          m.SiteID,
		VRM:             m.VRM,
		ExitMovementID:  null.IntFrom(int64(m.ID)),
		StartTime:       m.Timestamp,
		EndTime:         null.TimeFrom(m.Timestamp),
		DurationMinutes: null.IntFrom(0),
		Status:          domain.SessionInvalid,
	}
	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		return fmt.Errorf("recording orphan exit %d: %w", m.ID, err)
	}
	log.Printf("Exit movement %d for %s at site %d has no open session, recorded invalid session %d",
		m.ID, m.VRM, m.SiteID, created.ID)
	s.recordAudit(ctx, "movement", m.ID, domain.AuditMovementOrphanExit, "system", map[string]interface{}{
		"invalid_session_id": created.ID,
		"vrm":                m.VRM,
		"site_id":            m.SiteID,
	})
	return nil
}

func (s *CorrelationService) GetMovementByID(ctx context.Context, id int) (*domain.Movement, error) {
	return s.movementRepo.FindByID(ctx, id)
}

func (s *CorrelationService) GetSessionByID(ctx context.Context, id int) (*domain.Session, error) {
	return s.sessionRepo.FindByID(ctx, id)
}

func (s *CorrelationService) FindSessions(ctx context.Context, filter domain.SessionFilterDTO) ([]domain.Session, error) {
	return s.sessionRepo.Find(ctx, filter)
}

func (s *CorrelationService) GetOpenSessionsBySite(ctx context.Context, siteID int) ([]domain.Session, error) {
	return s.sessionRepo.FindOpenBySite(ctx, siteID)
}

func (s *CorrelationService) recordAudit(ctx context.Context, entityType string, entityID int, action, actor string, details map[string]interface{}) {
	entry := domain.NewAuditEntry(entityType, entityID, action, actor, details)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("audit write failed for %s %d (%s): %v", entityType, entityID, action, err)
	}
}

// roundMinutes converts a duration to whole minutes, rounding half up.
func roundMinutes(d time.Duration) int64 {
	return int64(math.Round(d.Minutes()))
}

// parseTimestamp accepts RFC3339 with or without sub-second precision and
// normalizes to UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
