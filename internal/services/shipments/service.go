package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/cache"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

type Repository interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
	GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error)
	UpdateShipment(ctx context.Context, id uint64, p models.ShipmentPatch) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, id uint64) error
	RefreshShipment(ctx context.Context, id uint64) error

	AttachShipment(ctx context.Context, shipmentID, containerID uint64) error
	DetachShipment(ctx context.Context, shipmentID uint64) error

	AppendEvent(ctx context.Context, in models.EventCreateInput) error
	ListEvents(ctx context.Context, parentType string, parentID uint64, limit, offset int) ([]*models.Event, error)
}

type Auditor interface {
	Record(ctx context.Context, ch audit.Change)
}

type Service struct {
	repo    Repository
	cache   cache.BytesCache
	auditor Auditor

	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, auditor Auditor, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, auditor: auditor, currentTTL: currentTTL}
}

func (s *Service) Create(ctx context.Context, actor string, in models.ShipmentCreateInput) (*models.Shipment, error) {
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.VehicleVIN = strings.TrimSpace(in.VehicleVIN)

	fields := map[string]string{}
	if in.TrackingNumber == "" {
		fields["trackingNumber"] = "required"
	}
	if in.VehicleVIN == "" {
		fields["vehicleVin"] = "required"
	}
	if len(fields) > 0 {
		return nil, errs.Validation("shipment payload invalid", fields)
	}

	sh, err := s.repo.CreateShipment(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    sh.ID,
			Action:      models.AuditActionCreate,
			PerformedBy: actor,
			Description: "shipment created: " + sh.TrackingNumber,
			New:         sh,
		})
	}
	s.cacheSet(ctx, sh)
	return sh, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Shipment, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, sh)
	return sh, nil
}

func (s *Service) GetByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}
	// Кэшируем "текущее состояние" целиком как JSON. Best-effort:
	// кэш не обязан быть всегда, промахи докрываем из БД.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Shipment, len(ids))

	if s.cache != nil && s.currentTTL > 0 {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var sh models.Shipment
			if json.Unmarshal(b, &sh) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &sh
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetShipmentsByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, sh := range fromDB {
			s.cacheSet(ctx, sh)
			got[sh.ID] = sh
		}
	}

	// Ответ в том же порядке, что ids; несуществующие молча пропускаем.
	out := make([]*models.Shipment, 0, len(ids))
	for _, id := range ids {
		if sh, ok := got[id]; ok {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor string, id uint64, p models.ShipmentPatch) (*models.Shipment, error) {
	if id == 0 {
		return nil, errs.Validation("shipment id is required", nil)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return nil, errs.Validation("progress must be within 0..100", map[string]string{"progress": "out of range"})
	}

	before, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	after, err := s.repo.UpdateShipment(ctx, id, p)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			PerformedBy: actor,
			Description: "shipment updated",
			Old:         before,
			New:         after,
		})
	}
	s.cacheSet(ctx, after)
	return after, nil
}

// Delete — административное удаление: каскадом уходит история событий,
// слот в контейнере освобождается. Обычный поток отправления не удаляет.
func (s *Service) Delete(ctx context.Context, actor string, id uint64) error {
	before, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteShipment(ctx, id); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			PerformedBy: actor,
			Description: "shipment deleted: " + before.TrackingNumber,
			Old:         before,
		})
	}
	s.cacheDel(ctx, id)
	return nil
}

// Refresh просит свериться с фидом вне расписания: next_sync_at -> сейчас,
// воркер подхватит отправление в ближайший свип.
func (s *Service) Refresh(ctx context.Context, id uint64) error {
	if id == 0 {
		return errs.Validation("shipment id is required", nil)
	}
	return s.repo.RefreshShipment(ctx, id)
}

func (s *Service) Attach(ctx context.Context, actor string, shipmentID, containerID uint64) error {
	if shipmentID == 0 || containerID == 0 {
		return errs.Validation("shipmentId and containerId are required", nil)
	}
	if err := s.repo.AttachShipment(ctx, shipmentID, containerID); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    shipmentID,
			Action:      models.AuditActionUpdate,
			PerformedBy: actor,
			Description: fmt.Sprintf("attached to container %d", containerID),
		})
	}
	s.cacheDel(ctx, shipmentID)
	return nil
}

func (s *Service) Detach(ctx context.Context, actor string, shipmentID uint64) error {
	if shipmentID == 0 {
		return errs.Validation("shipmentId is required", nil)
	}
	if err := s.repo.DetachShipment(ctx, shipmentID); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    shipmentID,
			Action:      models.AuditActionUpdate,
			PerformedBy: actor,
			Description: "detached from container",
		})
	}
	s.cacheDel(ctx, shipmentID)
	return nil
}

// CreateEvent — ручное событие от оператора. Канонический статус
// отправления при этом меняется только если пришёл валидный статус.
func (s *Service) CreateEvent(ctx context.Context, actor string, in models.EventCreateInput) error {
	if in.ParentID == 0 {
		return errs.Validation("parentId is required", nil)
	}
	if in.Status != "" && !models.IsCanonicalStatus(in.Status) {
		return errs.Validation("unknown status "+in.Status, map[string]string{"status": "not canonical"})
	}
	in.ParentType = models.EventParentShipment
	if in.EventTime.IsZero() {
		in.EventTime = time.Now().UTC()
	}

	// Родитель должен существовать: append-only лог не должен
	// накапливать сирот.
	if _, err := s.repo.GetShipment(ctx, in.ParentID); err != nil {
		return err
	}
	if err := s.repo.AppendEvent(ctx, in); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    in.ParentID,
			Action:      "EVENT",
			PerformedBy: actor,
			Description: "manual event: " + in.StatusRaw,
			New:         in,
		})
	}
	s.cacheDel(ctx, in.ParentID)
	return nil
}

func (s *Service) ListEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEvents(ctx, models.EventParentShipment, shipmentID, limit, offset)
}

// Invalidate сбрасывает кэш текущего состояния; вызывается consumer-ом
// при событии смены статуса от воркера.
func (s *Service) Invalidate(ctx context.Context, id uint64) {
	s.cacheDel(ctx, id)
}

func (s *Service) cacheSet(ctx context.Context, sh *models.Shipment) {
	if s.cache == nil || s.currentTTL <= 0 || sh == nil {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(sh.ID), b, s.currentTTL)
}

func (s *Service) cacheDel(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, currentKey(id))
}

func currentKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:current", id)
}
