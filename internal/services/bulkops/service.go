package bulkops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
	"github.com/cargodesk/consotrack/internal/storage/pgstore"
)

// Закрытый набор массовых действий. Неизвестное действие — ошибка
// валидации, партия не трогается.
const (
	ActionUpdateStatus   = "update_status"
	ActionUpdateProgress = "update_progress"
	ActionAssignUser     = "assign_user"
	ActionUpdatePayment  = "update_payment_status"
	ActionDelete         = "delete"
	ActionUpdateLocation = "update_location"
	ActionUpdateETA      = "update_eta"
	ActionExport         = "export"
)

type Repository interface {
	BulkUpdateStatus(ctx context.Context, ids []uint64, status string) (int64, error)
	BulkUpdateProgress(ctx context.Context, ids []uint64, progress int32) (int64, error)
	BulkAssignUser(ctx context.Context, ids []uint64, userID string) (int64, error)
	BulkUpdatePaymentStatus(ctx context.Context, ids []uint64, paymentStatus string) (int64, error)
	BulkUpdateLocation(ctx context.Context, ids []uint64, location string) (int64, error)
	BulkUpdateETA(ctx context.Context, ids []uint64, eta time.Time) (int64, error)
	BulkDeleteShipments(ctx context.Context, ids []uint64) (int64, error)
	ExportShipments(ctx context.Context, ids []uint64) ([]*pgstore.ShipmentExport, error)
}

type Auditor interface {
	Record(ctx context.Context, ch audit.Change)
}

type Request struct {
	Action      string          `json:"action" validate:"required"`
	ShipmentIDs []uint64        `json:"shipmentIds" validate:"required,min=1,dive,gt=0"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Result — Requested заявлено, Affected реально затронуто; расхождение
// значит, что часть id не существует — это не ошибка.
type Result struct {
	Action    string                    `json:"action"`
	Requested int                       `json:"requested"`
	Affected  int64                     `json:"affected"`
	Exports   []*pgstore.ShipmentExport `json:"exports,omitempty"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

type progressPayload struct {
	Progress *int32 `json:"progress" validate:"required,min=0,max=100"`
}

type assignPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type paymentPayload struct {
	PaymentStatus string `json:"paymentStatus" validate:"required"`
}

type locationPayload struct {
	Location string `json:"location" validate:"required"`
}

type etaPayload struct {
	EstimatedDelivery time.Time `json:"estimatedDelivery" validate:"required"`
}

type Service struct {
	repo     Repository
	auditor  Auditor
	validate *validator.Validate
}

func New(repo Repository, auditor Auditor) *Service {
	return &Service{
		repo:     repo,
		auditor:  auditor,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Dispatch валидирует пакет целиком до первого обращения к БД:
// невалидный payload откатывает всю партию без частичных эффектов.
// Дальше — одно set-based выражение на весь список id.
func (s *Service) Dispatch(ctx context.Context, actor string, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errs.Validation("bulk request invalid: "+err.Error(), nil)
	}

	res := &Result{Action: req.Action, Requested: len(req.ShipmentIDs)}

	var err error
	switch req.Action {
	case ActionUpdateStatus:
		var p statusPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		if !models.IsCanonicalStatus(p.Status) {
			return nil, errs.Validation("unknown status "+p.Status, map[string]string{"status": "not canonical"})
		}
		res.Affected, err = s.repo.BulkUpdateStatus(ctx, req.ShipmentIDs, p.Status)

	case ActionUpdateProgress:
		var p progressPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		res.Affected, err = s.repo.BulkUpdateProgress(ctx, req.ShipmentIDs, *p.Progress)

	case ActionAssignUser:
		var p assignPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		res.Affected, err = s.repo.BulkAssignUser(ctx, req.ShipmentIDs, p.UserID)

	case ActionUpdatePayment:
		var p paymentPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		res.Affected, err = s.repo.BulkUpdatePaymentStatus(ctx, req.ShipmentIDs, p.PaymentStatus)

	case ActionUpdateLocation:
		var p locationPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		res.Affected, err = s.repo.BulkUpdateLocation(ctx, req.ShipmentIDs, p.Location)

	case ActionUpdateETA:
		var p etaPayload
		if perr := s.parsePayload(req.Payload, &p); perr != nil {
			return nil, perr
		}
		res.Affected, err = s.repo.BulkUpdateETA(ctx, req.ShipmentIDs, p.EstimatedDelivery)

	case ActionDelete:
		res.Affected, err = s.repo.BulkDeleteShipments(ctx, req.ShipmentIDs)

	case ActionExport:
		// Read-only: возвращаем полные проекции вместо мутации.
		res.Exports, err = s.repo.ExportShipments(ctx, req.ShipmentIDs)
		res.Affected = int64(len(res.Exports))

	default:
		return nil, errs.Validation("unknown bulk action "+req.Action, map[string]string{"action": "unknown"})
	}
	if err != nil {
		return nil, err
	}

	if s.auditor != nil && req.Action != ActionExport {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			Action:      "BULK_" + req.Action,
			PerformedBy: actor,
			Description: fmt.Sprintf("bulk %s: requested=%d affected=%d", req.Action, res.Requested, res.Affected),
			New:         req,
		})
	}
	return res, nil
}

func (s *Service) parsePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errs.Validation("payload is required for this action", nil)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.Validation("payload is not valid json: "+err.Error(), nil)
	}
	if err := s.validate.Struct(dst); err != nil {
		return errs.Validation("payload invalid: "+err.Error(), nil)
	}
	return nil
}
