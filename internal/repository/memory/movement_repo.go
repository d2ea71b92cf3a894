// Package memory provides map-backed repository implementations used by unit
// tests. They enforce the same uniqueness and guard semantics as the
// PostgreSQL repositories.
package memory

import (
	"context"
	"sync"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
)

type MovementRepository struct {
	mu     sync.RWMutex
	seq    int
	byID   map[int]domain.Movement
	byUUID map[string]int
}

func NewMovementRepository() *MovementRepository {
	return &MovementRepository{
		byID:   make(map[int]domain.Movement),
		byUUID: make(map[string]int),
	}
}

func (r *MovementRepository) Create(ctx context.Context, m *domain.Movement) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.EventID != "" {
		if _, exists := r.byUUID[m.EventID]; exists {
			return nil, repository.ErrDuplicateEntry
		}
	}
	r.seq++
	m.ID = r.seq
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.byID[m.ID] = *m
	if m.EventID != "" {
		r.byUUID[m.EventID] = m.ID
	}
	copied := *m
	return &copied, nil
}

func (r *MovementRepository) FindByID(ctx context.Context, id int) (*domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := m
	return &copied, nil
}

func (r *MovementRepository) FindByEventID(ctx context.Context, eventID string) (*domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUUID[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m := r.byID[id]
	copied := m
	return &copied, nil
}

func (r *MovementRepository) Update(ctx context.Context, m *domain.Movement) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	r.byID[m.ID] = *m
	copied := *m
	return &copied, nil
}

func (r *MovementRepository) FindRequiringReview(ctx context.Context, limit int) ([]domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Movement
	for _, m := range r.byID {
		if m.RequiresReview && !m.Discarded {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
