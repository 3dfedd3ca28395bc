package containers

import (
	"context"
	"strings"
	"time"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

type Repository interface {
	CreateContainer(ctx context.Context, in models.ContainerCreateInput) (*models.Container, error)
	GetContainer(ctx context.Context, id uint64) (*models.Container, error)
	ListActiveContainers(ctx context.Context, limit, offset int) ([]*models.Container, int, error)
	UpdateContainerLocation(ctx context.Context, id uint64, location string, at time.Time) error
	ListEvents(ctx context.Context, parentType string, parentID uint64, limit, offset int) ([]*models.Event, error)

	CreateInvoice(ctx context.Context, in models.InvoiceCreateInput) (*models.Invoice, error)
	ListInvoices(ctx context.Context, containerID uint64) ([]*models.Invoice, error)
}

type Auditor interface {
	Record(ctx context.Context, ch audit.Change)
}

type Service struct {
	repo    Repository
	auditor Auditor
}

func New(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, auditor: auditor}
}

func (s *Service) Create(ctx context.Context, actor string, in models.ContainerCreateInput) (*models.Container, error) {
	in.ContainerNumber = strings.TrimSpace(in.ContainerNumber)

	fields := map[string]string{}
	if in.ContainerNumber == "" {
		fields["containerNumber"] = "required"
	}
	if in.MaxCapacity <= 0 {
		fields["maxCapacity"] = "must be positive"
	}
	if in.Status == "" {
		in.Status = models.ContainerStatusCreated
	}
	if !models.IsContainerStatus(in.Status) {
		fields["status"] = "unknown status " + in.Status
	}
	if len(fields) > 0 {
		return nil, errs.Validation("container payload invalid", fields)
	}

	c, err := s.repo.CreateContainer(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "container",
			EntityID:    c.ID,
			Action:      models.AuditActionCreate,
			PerformedBy: actor,
			Description: "container created: " + c.ContainerNumber,
			New:         c,
		})
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Container, error) {
	return s.repo.GetContainer(ctx, id)
}

// ListActive возвращает страницу контейнеров, готовых принимать
// отправления, и итог по всем подходящим (для пагинации клиента).
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]*models.Container, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListActiveContainers(ctx, limit, offset)
}

// UpdateLocation двигает контейнер и пишет location-событие в его лог.
func (s *Service) UpdateLocation(ctx context.Context, actor string, id uint64, location string) error {
	location = strings.TrimSpace(location)
	if id == 0 || location == "" {
		return errs.Validation("containerId and location are required", nil)
	}
	if err := s.repo.UpdateContainerLocation(ctx, id, location, time.Now().UTC()); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "container",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			PerformedBy: actor,
			Description: "location: " + location,
		})
	}
	return nil
}

func (s *Service) ListEvents(ctx context.Context, containerID uint64, limit, offset int) ([]*models.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEvents(ctx, models.EventParentContainer, containerID, limit, offset)
}

func (s *Service) CreateInvoice(ctx context.Context, actor string, in models.InvoiceCreateInput) (*models.Invoice, error) {
	fields := map[string]string{}
	if in.ContainerID == 0 {
		fields["containerId"] = "required"
	}
	if strings.TrimSpace(in.Number) == "" {
		fields["number"] = "required"
	}
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		fields["amount"] = "must be positive"
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if len(fields) > 0 {
		return nil, errs.Validation("invoice payload invalid", fields)
	}
	if in.IssuedAt.IsZero() {
		in.IssuedAt = time.Now().UTC()
	}

	inv, err := s.repo.CreateInvoice(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "container",
			EntityID:    in.ContainerID,
			Action:      models.AuditActionCreate,
			PerformedBy: actor,
			Description: "invoice " + inv.Number + " for " + inv.Amount.StringFixed(2) + " " + inv.Currency,
			New:         inv,
		})
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, containerID uint64) ([]*models.Invoice, error) {
	if containerID == 0 {
		return nil, errs.Validation("containerId is required", nil)
	}
	return s.repo.ListInvoices(ctx, containerID)
}
