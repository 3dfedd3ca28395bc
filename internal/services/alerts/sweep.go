package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/models"
)

type Repository interface {
	ListAlertCandidates(ctx context.Context, afterID uint64, limit int) ([]*models.Shipment, error)
	UpdateAlertStatus(ctx context.Context, id uint64, level string) (bool, error)
}

type Auditor interface {
	Record(ctx context.Context, ch audit.Change)
}

type Transition struct {
	ShipmentID uint64 `json:"shipmentId"`
	OldLevel   string `json:"oldLevel"`
	NewLevel   string `json:"newLevel"`
}

type ItemError struct {
	ShipmentID uint64 `json:"shipmentId"`
	Error      string `json:"error"`
}

// Summary — итог одного прохода: счётчики по вычисленным уровням,
// фактические переходы (вход диспетчера уведомлений) и поштучные ошибки.
type Summary struct {
	Overdue int `json:"overdue"`
	Warning int `json:"warning"`
	OnTime  int `json:"onTime"`

	Transitions []Transition `json:"transitions"`
	Errors      []ItemError  `json:"errors"`
}

type Sweeper struct {
	repo      Repository
	auditor   Auditor
	batchSize int
	now       func() time.Time
}

func NewSweeper(repo Repository, auditor Auditor) *Sweeper {
	return &Sweeper{
		repo:      repo,
		auditor:   auditor,
		batchSize: 200,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep проходит рабочее множество (недоставленные с заданной ETA) и
// приводит кэшированный уровень к правилу классификации. Запись — только
// при фактической смене уровня. Поштучные сбои копятся в Errors и не
// прерывают проход.
func (s *Sweeper) Sweep(ctx context.Context) (*Summary, error) {
	now := s.now()
	sum := &Summary{}

	var afterID uint64
	for {
		batch, err := s.repo.ListAlertCandidates(ctx, afterID, s.batchSize)
		if err != nil {
			return sum, err
		}
		if len(batch) == 0 {
			break
		}
		for _, sh := range batch {
			afterID = sh.ID
			s.sweepOne(ctx, now, sh, sum)
		}
		if len(batch) < s.batchSize {
			break
		}
	}
	return sum, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, now time.Time, sh *models.Shipment, sum *Summary) {
	level, ok := Classify(now, sh.EstimatedDelivery, sh.Status)
	if !ok {
		return
	}

	switch level {
	case models.AlertStatusOverdue:
		sum.Overdue++
	case models.AlertStatusWarning:
		sum.Warning++
	case models.AlertStatusOnTime:
		sum.OnTime++
	}

	if level == sh.DeliveryAlertStatus {
		return
	}

	changed, err := s.repo.UpdateAlertStatus(ctx, sh.ID, level)
	if err != nil {
		sum.Errors = append(sum.Errors, ItemError{ShipmentID: sh.ID, Error: err.Error()})
		slog.Error("update alert status", "shipment_id", sh.ID, "error", err.Error())
		return
	}
	if !changed {
		// Кто-то успел записать тот же уровень между выборкой и апдейтом.
		return
	}

	sum.Transitions = append(sum.Transitions, Transition{
		ShipmentID: sh.ID,
		OldLevel:   sh.DeliveryAlertStatus,
		NewLevel:   level,
	})

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Change{
			EntityType:  "shipment",
			EntityID:    sh.ID,
			Action:      models.AuditActionUpdate,
			PerformedBy: "alert-sweep",
			Description: "delivery alert " + displayLevel(sh.DeliveryAlertStatus) + " -> " + level,
			Old:         map[string]string{"deliveryAlertStatus": sh.DeliveryAlertStatus},
			New:         map[string]string{"deliveryAlertStatus": level},
		})
	}
}

func displayLevel(l string) string {
	if l == models.AlertStatusUnset {
		return "UNSET"
	}
	return l
}
