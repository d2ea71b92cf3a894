package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

// ReapResult summarizes one stale-session sweep.
type ReapResult struct {
	Examined    int `json:"examined"`
	Invalidated int `json:"invalidated"`
	Failed      int `json:"failed"`
}

// ReaperService expires provisional sessions whose exit was never observed.
// Expired sessions become INVALID with no synthetic exit and no decision; a
// stay we never saw end is not evidence of anything.
type ReaperService struct {
	sessionRepo repository.SessionRepository
	auditRepo   repository.AuditLogRepository
	batchSize   int
}

func NewReaperService(sessionRepo repository.SessionRepository, auditRepo repository.AuditLogRepository) *ReaperService {
	return &ReaperService{
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		batchSize:   500,
	}
}

// ReapStale invalidates open sessions older than the given age.
func (s *ReaperService) ReapStale(ctx context.Context, olderThan time.Duration) (*ReapResult, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := s.sessionRepo.FindStaleOpen(ctx, cutoff, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("loading stale open sessions: %w", err)
	}

	result := &ReapResult{}
	for i := range stale {
		result.Examined++
		session := &stale[i]
		age := time.Since(session.StartTime)
		session.Status = domain.SessionInvalid
		if _, err := s.sessionRepo.Update(ctx, session); err != nil {
			result.Failed++
			log.Printf("expiring session %d failed: %v", session.ID, err)
			continue
		}
		result.Invalidated++
		s.recordAudit(ctx, session.ID, map[string]interface{}{
			"vrm":       session.VRM,
			"site_id":   session.SiteID,
			"age_hours": int(age.Hours()),
			"cutoff":    cutoff,
		})
	}

	if result.Examined > 0 {
		log.Printf("Stale session sweep (older than %s): examined=%d invalidated=%d failed=%d",
			olderThan, result.Examined, result.Invalidated, result.Failed)
	}
	return result, nil
}

// Stats reports the age distribution of currently open sessions.
func (s *ReaperService) Stats(ctx context.Context) (*domain.StaleSessionStats, error) {
	return s.sessionRepo.StaleStats(ctx, time.Now().UTC())
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *ReaperService) Run(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("Stale session reaper started: every %s, expiring sessions older than %s", interval, olderThan)
	for {
		select {
		case <-ctx.Done():
			log.Println("Stale session reaper stopped")
			return
		case <-ticker.C:
			if _, err := s.ReapStale(ctx, olderThan); err != nil {
				log.Printf("stale session sweep failed: %v", err)
			}
		}
	}
}

func (s *ReaperService) recordAudit(ctx context.Context, sessionID int, details map[string]interface{}) {
	entry := domain.NewAuditEntry("session", sessionID, domain.AuditSessionExpired, "system", details)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("audit write failed for session %d (%s): %v", sessionID, domain.AuditSessionExpired, err)
	}
}
