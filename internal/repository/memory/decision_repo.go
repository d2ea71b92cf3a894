package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

type DecisionRepository struct {
	mu   sync.RWMutex
	seq  int
	byID map[int]domain.Decision

	// sessions resolves VRM/site joins for reconciliation candidates.
	sessions *SessionRepository
}

func NewDecisionRepository(sessions *SessionRepository) *DecisionRepository {
	r := &DecisionRepository{
		byID:     make(map[int]domain.Decision),
		sessions: sessions,
	}
	if sessions != nil {
		sessions.AttachDecisions(r)
	}
	return r
}

func (r *DecisionRepository) Create(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	d.ID = r.seq
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.byID[d.ID] = *d
	copied := *d
	return &copied, nil
}

func (r *DecisionRepository) FindByID(ctx context.Context, id int) (*domain.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := d
	return &copied, nil
}

func (r *DecisionRepository) FindBySessionID(ctx context.Context, sessionID int) (*domain.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.byID {
		if d.SessionID.Valid && int(d.SessionID.Int64) == sessionID {
			copied := d
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *DecisionRepository) hasDecisionForSession(sessionID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.byID {
		if d.SessionID.Valid && int(d.SessionID.Int64) == sessionID {
			return true
		}
	}
	return false
}

func (r *DecisionRepository) FindReconciliationCandidates(ctx context.Context, vrm string, siteID *int) ([]domain.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Decision
	for _, d := range r.byID {
		if d.Status != domain.DecisionNew && d.Status != domain.DecisionCandidate {
			continue
		}
		if d.IsOperatorOverride {
			continue
		}
		if !d.SessionID.Valid || r.sessions == nil {
			continue
		}
		session, err := r.sessions.FindByID(ctx, int(d.SessionID.Int64))
		if err != nil {
			continue
		}
		if session.VRM != vrm {
			continue
		}
		if siteID != nil && session.SiteID != *siteID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *DecisionRepository) UpdateOutcomeGuarded(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[d.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if current.IsOperatorOverride ||
		(current.Status != domain.DecisionNew && current.Status != domain.DecisionCandidate) {
		return nil, repository.ErrDecisionFinalized
	}
	current.Outcome = d.Outcome
	current.RuleApplied = d.RuleApplied
	current.Rationale = d.Rationale
	current.Params = d.Params
	current.UpdatedAt = time.Now().UTC()
	r.byID[d.ID] = current
	copied := current
	return &copied, nil
}

func (r *DecisionRepository) UpdateReview(ctx context.Context, d *domain.Decision) (*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	r.byID[d.ID] = *d
	copied := *d
	return &copied, nil
}

func (r *DecisionRepository) Find(ctx context.Context, filter domain.DecisionFilterDTO) ([]domain.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Decision
	for _, d := range r.byID {
		if filter.Outcome != nil && string(d.Outcome) != *filter.Outcome {
			continue
		}
		if filter.Status != nil && string(d.Status) != *filter.Status {
			continue
		}
		if (filter.VRM != nil || filter.SiteID != nil) && r.sessions != nil && d.SessionID.Valid {
			session, err := r.sessions.FindByID(ctx, int(d.SessionID.Int64))
			if err != nil {
				continue
			}
			if filter.VRM != nil && session.VRM != domain.NormalizeVRM(*filter.VRM) {
				continue
			}
			if filter.SiteID != nil && session.SiteID != *filter.SiteID {
				continue
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
