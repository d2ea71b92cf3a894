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

var ErrInvalidEnforcementType = errors.New("invalid enforcement type")
var ErrInvalidPermitType = errors.New("invalid permit type")
var ErrInvalidWindow = errors.New("window end must not precede window start")

// RegistryService manages the reference data the decision engine evaluates
// against: sites, permits, payments and the camera registry. Permit and
// payment writes trigger an asynchronous reconciliation pass so existing
// decisions catch up with the new evidence.
type RegistryService struct {
	siteRepo    repository.SiteRepository
	permitRepo  repository.PermitRepository
	paymentRepo repository.PaymentRepository
	cameraRepo  repository.CameraRepository
	reconciler  *ReconciliationService
}

func NewRegistryService(
	siteRepo repository.SiteRepository,
	permitRepo repository.PermitRepository,
	paymentRepo repository.PaymentRepository,
	cameraRepo repository.CameraRepository,
	reconciler *ReconciliationService,
) *RegistryService {
	return &RegistryService{
		siteRepo:    siteRepo,
		permitRepo:  permitRepo,
		paymentRepo: paymentRepo,
		cameraRepo:  cameraRepo,
		reconciler:  reconciler,
	}
}

// --- Sites ---

func (s *RegistryService) CreateSite(ctx context.Context, dto domain.SiteDTO) (*domain.Site, error) {
	site, err := siteFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return s.siteRepo.Create(ctx, site)
}

func (s *RegistryService) GetSiteByID(ctx context.Context, id int) (*domain.Site, error) {
	return s.siteRepo.FindByID(ctx, id)
}

func (s *RegistryService) GetAllSites(ctx context.Context) ([]domain.Site, error) {
	return s.siteRepo.FindAll(ctx)
}

func (s *RegistryService) UpdateSite(ctx context.Context, id int, dto domain.SiteDTO) (*domain.Site, error) {
	site, err := siteFromDTO(dto)
	if err != nil {
		return nil, err
	}
	site.ID = id
	return s.siteRepo.Update(ctx, site)
}

func (s *RegistryService) DeleteSite(ctx context.Context, id int) error {
	return s.siteRepo.Delete(ctx, id)
}

func siteFromDTO(dto domain.SiteDTO) (*domain.Site, error) {
	enforcement := domain.EnforcementAuto
	if dto.EnforcementType != "" {
		enforcement = domain.EnforcementType(dto.EnforcementType)
		if !enforcement.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEnforcementType, dto.EnforcementType)
		}
	}
	site := &domain.Site{
		Name:            dto.Name,
		Address:         dto.Address,
		EnforcementType: enforcement,
	}
	if dto.EntryGraceMinutes != nil {
		site.EntryGraceMinutes = null.IntFrom(int64(*dto.EntryGraceMinutes))
	}
	if dto.ExitGraceMinutes != nil {
		site.ExitGraceMinutes = null.IntFrom(int64(*dto.ExitGraceMinutes))
	}
	return site, nil
}

// --- Permits ---

func (s *RegistryService) CreatePermit(ctx context.Context, dto domain.CreatePermitDTO) (*domain.Permit, error) {
	permit, err := permitFromDTO(dto)
	if err != nil {
		return nil, err
	}
	created, err := s.permitRepo.Create(ctx, permit)
	if err != nil {
		return nil, err
	}
	s.triggerPermitReconciliation(created.VRM, created.SiteID, "permit created")
	return created, nil
}

func (s *RegistryService) GetPermitByID(ctx context.Context, id int) (*domain.Permit, error) {
	return s.permitRepo.FindByID(ctx, id)
}

func (s *RegistryService) UpdatePermit(ctx context.Context, id int, dto domain.CreatePermitDTO) (*domain.Permit, error) {
	permit, err := permitFromDTO(dto)
	if err != nil {
		return nil, err
	}
	permit.ID = id
	updated, err := s.permitRepo.Update(ctx, permit)
	if err != nil {
		return nil, err
	}
	s.triggerPermitReconciliation(updated.VRM, updated.SiteID, "permit updated")
	return updated, nil
}

func (s *RegistryService) DeletePermit(ctx context.Context, id int) error {
	permit, err := s.permitRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.permitRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.triggerPermitReconciliation(permit.VRM, permit.SiteID, "permit deleted")
	return nil
}

func permitFromDTO(dto domain.CreatePermitDTO) (*domain.Permit, error) {
	permitType := domain.PermitType(dto.Type)
	switch permitType {
	case domain.PermitWhitelist, domain.PermitResident, domain.PermitStaff, domain.PermitContractor:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPermitType, dto.Type)
	}

	start, err := time.Parse(time.RFC3339, dto.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	permit := &domain.Permit{
		VRM:       domain.NormalizeVRM(dto.VRM),
		Type:      permitType,
		StartDate: start.UTC(),
		Active:    true,
	}
	if dto.SiteID != nil {
		permit.SiteID = null.IntFrom(int64(*dto.SiteID))
	}
	if dto.EndDate != "" {
		end, err := time.Parse(time.RFC3339, dto.EndDate)
		if err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		if end.Before(start) {
			return nil, ErrInvalidWindow
		}
		permit.EndDate = null.TimeFrom(end.UTC())
	}
	if dto.Active != nil {
		permit.Active = *dto.Active
	}
	return permit, nil
}

// --- Payments ---

func (s *RegistryService) CreatePayment(ctx context.Context, dto domain.CreatePaymentDTO) (*domain.Payment, error) {
	start, err := time.Parse(time.RFC3339, dto.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, dto.ExpiryTime)
	if err != nil {
		return nil, fmt.Errorf("parsing expiry_time: %w", err)
	}
	if expiry.Before(start) {
		return nil, ErrInvalidWindow
	}

	payment := &domain.Payment{
		SiteID:     dto.SiteID,
		VRM:        domain.NormalizeVRM(dto.VRM),
		Amount:     dto.Amount,
		StartTime:  start.UTC(),
		ExpiryTime: expiry.UTC(),
		Source:     dto.Source,
	}
	if dto.ExternalRef != "" {
		payment.ExternalRef = null.StringFrom(dto.ExternalRef)
	}

	created, err := s.paymentRepo.Create(ctx, payment)
	if err != nil {
		return nil, err
	}
	s.triggerPaymentReconciliation(created.VRM, created.SiteID, "payment recorded")
	return created, nil
}

func (s *RegistryService) GetPaymentByID(ctx context.Context, id int) (*domain.Payment, error) {
	return s.paymentRepo.FindByID(ctx, id)
}

func (s *RegistryService) DeletePayment(ctx context.Context, id int) error {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.paymentRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.triggerPaymentReconciliation(payment.VRM, payment.SiteID, "payment deleted")
	return nil
}

// --- Cameras ---

func (s *RegistryService) RegisterCamera(ctx context.Context, camera *domain.Camera) (*domain.Camera, error) {
	if camera.Status == "" {
		camera.Status = domain.CameraOffline
	}
	return s.cameraRepo.CreateOrUpdate(ctx, camera)
}

func (s *RegistryService) GetCameraByCameraID(ctx context.Context, cameraID string) (*domain.Camera, error) {
	return s.cameraRepo.FindByCameraID(ctx, cameraID)
}

func (s *RegistryService) GetAllCameras(ctx context.Context) ([]domain.Camera, error) {
	return s.cameraRepo.FindAll(ctx)
}

// --- Reconciliation triggers ---

// Reconciliation runs detached from the caller's request so evidence writes
// stay fast; the pass is idempotent, so a missed run is repaired by the next
// trigger or the admin endpoint.
func (s *RegistryService) triggerPermitReconciliation(vrm string, siteID null.Int, trigger string) {
	if s.reconciler == nil {
		return
	}
	var site *int
	if siteID.Valid {
		v := int(siteID.Int64)
		site = &v
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.reconciler.ReconcileForPermit(ctx, vrm, site); err != nil {
			log.Printf("reconciliation after %s failed for %s: %v", trigger, vrm, err)
		}
	}()
}

func (s *RegistryService) triggerPaymentReconciliation(vrm string, siteID int, trigger string) {
	if s.reconciler == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.reconciler.ReconcileForPayment(ctx, vrm, siteID); err != nil {
			log.Printf("reconciliation after %s failed for %s: %v", trigger, vrm, err)
		}
	}()
}
