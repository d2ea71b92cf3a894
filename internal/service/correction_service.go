package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"gopkg.in/guregu/null.v4"
)

var ErrMovementDiscarded = errors.New("movement is discarded; restore it before changing its direction")
var ErrAlreadyDiscarded = errors.New("movement is already discarded")
var ErrNotDiscarded = errors.New("movement is not discarded")
var ErrUnknownNotAllowed = errors.New("direction cannot be set to UNKNOWN")

// CorrectionService applies operator corrections to movements and propagates
// the consequences onto any session built from them. Every mutation is
// audited with before/after values and the acting operator.
type CorrectionService struct {
	movementRepo repository.MovementRepository
	sessionRepo  repository.SessionRepository
	auditRepo    repository.AuditLogRepository
	correlator   *CorrelationService
}

func NewCorrectionService(
	movementRepo repository.MovementRepository,
	sessionRepo repository.SessionRepository,
	auditRepo repository.AuditLogRepository,
	correlator *CorrelationService,
) *CorrectionService {
	return &CorrectionService{
		movementRepo: movementRepo,
		sessionRepo:  sessionRepo,
		auditRepo:    auditRepo,
		correlator:   correlator,
	}
}

// FlipDirection inverts a movement's entry/exit label. Any session built on
// the old label is invalidated: its chronology can no longer be trusted and
// must be rebuilt, not patched.
func (s *CorrectionService) FlipDirection(ctx context.Context, movementID int, actor string, reprocess bool) (*domain.Movement, error) {
	movement, err := s.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if movement.Discarded {
		return nil, ErrMovementDiscarded
	}
	return s.setDirection(ctx, movement, movement.Direction.Opposite(), actor, reprocess)
}

// SetDirection assigns an explicit direction, typically to resolve UNKNOWN.
func (s *CorrectionService) SetDirection(ctx context.Context, movementID int, direction domain.MovementDirection, actor string, reprocess bool) (*domain.Movement, error) {
	if !direction.Valid() || direction == domain.DirectionUnknown {
		if direction == domain.DirectionUnknown {
			return nil, ErrUnknownNotAllowed
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	movement, err := s.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if movement.Discarded {
		return nil, ErrMovementDiscarded
	}
	return s.setDirection(ctx, movement, direction, actor, reprocess)
}

func (s *CorrectionService) setDirection(ctx context.Context, movement *domain.Movement, direction domain.MovementDirection, actor string, reprocess bool) (*domain.Movement, error) {
	before := movement.Direction
	if before == direction {
		return movement, nil
	}

	if err := s.invalidateSessionsReferencing(ctx, movement.ID, actor, true); err != nil {
		return nil, err
	}

	movement.Direction = direction
	updated, err := s.movementRepo.Update(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("updating direction of movement %d: %w", movement.ID, err)
	}

	log.Printf("Movement %d direction corrected %s -> %s by %s", movement.ID, before, direction, actor)
	s.recordAudit(ctx, "movement", movement.ID, domain.AuditMovementDirectionSet, actor, map[string]interface{}{
		"before": before,
		"after":  direction,
	})

	if reprocess {
		if err := s.correlator.ProcessMovement(ctx, updated); err != nil {
			return nil, fmt.Errorf("reprocessing corrected movement %d: %w", movement.ID, err)
		}
	}
	return updated, nil
}

// Discard marks a movement unusable. An entry-owning session is invalidated;
// an exit-owning session reverts to PROVISIONAL, because the stay may still
// be open and a real exit may yet arrive.
func (s *CorrectionService) Discard(ctx context.Context, movementID int, reason, actor string) (*domain.Movement, error) {
	movement, err := s.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if movement.Discarded {
		return nil, ErrAlreadyDiscarded
	}

	entrySessions, err := s.sessionRepo.FindByEntryMovementID(ctx, movement.ID)
	if err != nil {
		return nil, fmt.Errorf("finding sessions by entry movement %d: %w", movement.ID, err)
	}
	for i := range entrySessions {
		if err := s.invalidateSession(ctx, &entrySessions[i], actor, "entry movement discarded"); err != nil {
			return nil, err
		}
	}

	exitSessions, err := s.sessionRepo.FindByExitMovementID(ctx, movement.ID)
	if err != nil {
		return nil, fmt.Errorf("finding sessions by exit movement %d: %w", movement.ID, err)
	}
	for i := range exitSessions {
		if err := s.reopenSession(ctx, &exitSessions[i], actor); err != nil {
			return nil, err
		}
	}

	movement.Discarded = true
	movement.DiscardReason = null.StringFrom(reason)
	movement.DiscardedAt = null.TimeFrom(time.Now().UTC())
	updated, err := s.movementRepo.Update(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("discarding movement %d: %w", movement.ID, err)
	}

	log.Printf("Movement %d discarded by %s: %s", movement.ID, actor, reason)
	s.recordAudit(ctx, "movement", movement.ID, domain.AuditMovementDiscarded, actor, map[string]interface{}{
		"reason": reason,
	})
	return updated, nil
}

// Restore clears the discarded flag. Sessions invalidated while the
// movement was discarded are deliberately left invalid; resurrecting them is
// a manual-review call, not an automated one.
func (s *CorrectionService) Restore(ctx context.Context, movementID int, actor string) (*domain.Movement, error) {
	movement, err := s.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if !movement.Discarded {
		return nil, ErrNotDiscarded
	}

	movement.Discarded = false
	movement.DiscardReason = null.String{}
	movement.DiscardedAt = null.Time{}
	updated, err := s.movementRepo.Update(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("restoring movement %d: %w", movement.ID, err)
	}

	log.Printf("Movement %d restored by %s", movement.ID, actor)
	s.recordAudit(ctx, "movement", movement.ID, domain.AuditMovementRestored, actor, nil)
	return updated, nil
}

// FlagForReview sets the requires-review flag from a validation collaborator.
func (s *CorrectionService) FlagForReview(ctx context.Context, movementID int, actor, note string) (*domain.Movement, error) {
	movement, err := s.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if movement.RequiresReview {
		return movement, nil
	}
	movement.RequiresReview = true
	updated, err := s.movementRepo.Update(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("flagging movement %d for review: %w", movement.ID, err)
	}
	s.recordAudit(ctx, "movement", movement.ID, domain.AuditMovementFlaggedReview, actor, map[string]interface{}{
		"note": note,
	})
	return updated, nil
}

func (s *CorrectionService) invalidateSessionsReferencing(ctx context.Context, movementID int, actor string, includeExit bool) error {
	entrySessions, err := s.sessionRepo.FindByEntryMovementID(ctx, movementID)
	if err != nil {
		return fmt.Errorf("finding sessions by entry movement %d: %w", movementID, err)
	}
	for i := range entrySessions {
		if err := s.invalidateSession(ctx, &entrySessions[i], actor, "entry movement corrected"); err != nil {
			return err
		}
	}
	if !includeExit {
		return nil
	}
	exitSessions, err := s.sessionRepo.FindByExitMovementID(ctx, movementID)
	if err != nil {
		return fmt.Errorf("finding sessions by exit movement %d: %w", movementID, err)
	}
	for i := range exitSessions {
		if err := s.invalidateSession(ctx, &exitSessions[i], actor, "exit movement corrected"); err != nil {
			return err
		}
	}
	return nil
}

func (s *CorrectionService) invalidateSession(ctx context.Context, session *domain.Session, actor, reason string) error {
	if session.Status == domain.SessionInvalid {
		return nil
	}
	before := session.Status
	session.Status = domain.SessionInvalid
	if _, err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("invalidating session %d: %w", session.ID, err)
	}
	log.Printf("Session %d invalidated (%s)", session.ID, reason)
	s.recordAudit(ctx, "session", session.ID, domain.AuditSessionInvalidated, actor, map[string]interface{}{
		"before_status": before,
		"reason":        reason,
	})
	return nil
}

func (s *CorrectionService) reopenSession(ctx context.Context, session *domain.Session, actor string) error {
	before := session.Status
	session.ExitMovementID = null.Int{}
	session.EndTime = null.Time{}
	session.DurationMinutes = null.Int{}
	session.Status = domain.SessionProvisional
	if _, err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("reopening session %d: %w", session.ID, err)
	}
	log.Printf("Session %d reverted to provisional, exit evidence discarded", session.ID)
	s.recordAudit(ctx, "session", session.ID, domain.AuditSessionReopened, actor, map[string]interface{}{
		"before_status": before,
	})
	return nil
}

func (s *CorrectionService) recordAudit(ctx context.Context, entityType string, entityID int, action, actor string, details map[string]interface{}) {
	entry := domain.NewAuditEntry(entityType, entityID, action, actor, details)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("audit write failed for %s %d (%s): %v", entityType, entityID, action, err)
	}
}
