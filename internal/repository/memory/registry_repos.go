package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"

	"gopkg.in/guregu/null.v4"
)

type PermitRepository struct {
	mu   sync.RWMutex
	seq  int
	byID map[int]domain.Permit
}

func NewPermitRepository() *PermitRepository {
	return &PermitRepository{byID: make(map[int]domain.Permit)}
}

func (r *PermitRepository) Create(ctx context.Context, p *domain.Permit) (*domain.Permit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	p.ID = r.seq
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.byID[p.ID] = *p
	copied := *p
	return &copied, nil
}

func (r *PermitRepository) FindByID(ctx context.Context, id int) (*domain.Permit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (r *PermitRepository) FindActiveForVRM(ctx context.Context, vrm string, siteID int) ([]domain.Permit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Permit
	for _, p := range r.byID {
		if p.VRM != vrm || !p.Active {
			continue
		}
		if p.SiteID.Valid && int(p.SiteID.Int64) != siteID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PermitRepository) Update(ctx context.Context, p *domain.Permit) (*domain.Permit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	r.byID[p.ID] = *p
	copied := *p
	return &copied, nil
}

func (r *PermitRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type PaymentRepository struct {
	mu   sync.RWMutex
	seq  int
	byID map[int]domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byID: make(map[int]domain.Payment)}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	p.ID = r.seq
	p.CreatedAt = time.Now().UTC()
	r.byID[p.ID] = *p
	copied := *p
	return &copied, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (r *PaymentRepository) FindByVRMAndSite(ctx context.Context, vrm string, siteID int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.byID {
		if p.VRM == vrm && p.SiteID == siteID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PaymentRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type SiteRepository struct {
	mu   sync.RWMutex
	seq  int
	byID map[int]domain.Site
}

func NewSiteRepository() *SiteRepository {
	return &SiteRepository{byID: make(map[int]domain.Site)}
}

func (r *SiteRepository) Create(ctx context.Context, s *domain.Site) (*domain.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.ID = r.seq
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.byID[s.ID] = *s
	copied := *s
	return &copied, nil
}

func (r *SiteRepository) FindByID(ctx context.Context, id int) (*domain.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := s
	return &copied, nil
}

func (r *SiteRepository) FindAll(ctx context.Context) ([]domain.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Site
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SiteRepository) Update(ctx context.Context, s *domain.Site) (*domain.Site, error) {
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

func (r *SiteRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type CameraRepository struct {
	mu         sync.RWMutex
	seq        int
	byCameraID map[string]domain.Camera
}

func NewCameraRepository() *CameraRepository {
	return &CameraRepository{byCameraID: make(map[string]domain.Camera)}
}

func (r *CameraRepository) CreateOrUpdate(ctx context.Context, c *domain.Camera) (*domain.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.byCameraID[c.CameraID]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		r.seq++
		c.ID = r.seq
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.byCameraID[c.CameraID] = *c
	copied := *c
	return &copied, nil
}

func (r *CameraRepository) FindByCameraID(ctx context.Context, cameraID string) (*domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byCameraID[cameraID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (r *CameraRepository) FindAll(ctx context.Context) ([]domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Camera
	for _, c := range r.byCameraID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CameraRepository) NoteSeen(ctx context.Context, cameraID string, siteID int, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCameraID[cameraID]
	if !ok {
		r.seq++
		c = domain.Camera{
			ID:        r.seq,
			CameraID:  cameraID,
			CreatedAt: time.Now().UTC(),
		}
	}
	c.SiteID = null.IntFrom(int64(siteID))
	c.Status = domain.CameraOnline
	c.LastSeenAt = null.TimeFrom(seenAt.UTC())
	c.UpdatedAt = time.Now().UTC()
	r.byCameraID[cameraID] = c
	return nil
}

type AuditLogRepository struct {
	mu      sync.RWMutex
	seq     int
	entries []domain.AuditEntry
}

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Create(ctx context.Context, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.ID = r.seq
	e.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *AuditLogRepository) FindByEntity(ctx context.Context, entityType string, entityID int) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type UserRepository struct {
	mu         sync.RWMutex
	seq        int
	byUsername map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byUsername: make(map[string]domain.User)}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[user.Username]; exists {
		return nil, repository.ErrDuplicateEntry
	}
	r.seq++
	user.ID = r.seq
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byUsername[user.Username] = *user
	copied := *user
	return &copied, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byUsername[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byUsername {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}
