package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

type SessionRepository struct {
	mu   sync.RWMutex
	seq  int
	byID map[int]domain.Session

	// decisions lets FindCompletedWithoutDecision mirror the SQL LEFT JOIN.
	decisions *DecisionRepository
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{byID: make(map[int]domain.Session)}
}

// AttachDecisions wires a decision repository so orphan-session queries can
// exclude decided sessions.
func (r *SessionRepository) AttachDecisions(d *DecisionRepository) {
	r.decisions = d
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Open() {
		for _, existing := range r.byID {
			if existing.SiteID == s.SiteID && existing.VRM == s.VRM && existing.Open() {
				return nil, repository.ErrOpenSessionExists
			}
		}
	}
	r.seq++
	s.ID = r.seq
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.byID[s.ID] = *s
	copied := *s
	return &copied, nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id int) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := s
	return &copied, nil
}

func (r *SessionRepository) FindOpenByVRMAndSite(ctx context.Context, siteID int, vrm string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Session
	for _, s := range r.byID {
		if s.SiteID == siteID && s.VRM == vrm && s.Open() {
			if found == nil || s.StartTime.After(found.StartTime) {
				copied := s
				found = &copied
			}
		}
	}
	if found == nil {
		return nil, repository.ErrNoOpenSession
	}
	return found, nil
}

func (r *SessionRepository) FindByEntryMovementID(ctx context.Context, movementID int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.EntryMovementID.Valid && int(s.EntryMovementID.Int64) == movementID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SessionRepository) FindByExitMovementID(ctx context.Context, movementID int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.ExitMovementID.Valid && int(s.ExitMovementID.Int64) == movementID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	r.byID[s.ID] = *s
	copied := *s
	return &copied, nil
}

func (r *SessionRepository) Find(ctx context.Context, filter domain.SessionFilterDTO) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if filter.SiteID != nil && s.SiteID != *filter.SiteID {
			continue
		}
		if filter.VRM != nil && s.VRM != domain.NormalizeVRM(*filter.VRM) {
			continue
		}
		if filter.Status != nil && string(s.Status) != *filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SessionRepository) FindOpenBySite(ctx context.Context, siteID int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.SiteID == siteID && s.Open() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *SessionRepository) FindStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.Open() && s.StartTime.Before(cutoff) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SessionRepository) FindCompletedWithoutDecision(ctx context.Context, limit int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.Status != domain.SessionCompleted {
			continue
		}
		if r.decisions != nil && r.decisions.hasDecisionForSession(s.ID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SessionRepository) StaleStats(ctx context.Context, now time.Time) (*domain.StaleSessionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &domain.StaleSessionStats{}
	for _, s := range r.byID {
		if !s.Open() {
			continue
		}
		age := now.Sub(s.StartTime)
		switch {
		case age < 24*time.Hour:
			stats.Under24h++
		case age < 72*time.Hour:
			stats.From24To72h++
		case age < 7*24*time.Hour:
			stats.From72hTo7d++
		default:
			stats.Over7d++
		}
		stats.Total++
	}
	return stats, nil
}
