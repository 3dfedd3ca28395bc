package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/models"
)

// Массовые операции — одно set-based выражение на весь список id.
// Отсутствующие id молча не попадают под выражение; возвращаем число
// реально затронутых строк.

func (s *Storage) BulkUpdateStatus(ctx context.Context, ids []uint64, status string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET status = $2, updated_at = now() WHERE id = ANY($1)
`, ids, status)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update status")
	}
	return ct.RowsAffected(), nil
}

func (s *Storage) BulkUpdateProgress(ctx context.Context, ids []uint64, progress int32) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET progress = $2, updated_at = now() WHERE id = ANY($1)
`, ids, progress)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update progress")
	}
	return ct.RowsAffected(), nil
}

func (s *Storage) BulkAssignUser(ctx context.Context, ids []uint64, userID string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET assigned_user_id = $2, updated_at = now() WHERE id = ANY($1)
`, ids, userID)
	if err != nil {
		return 0, errors.Wrap(err, "bulk assign user")
	}
	return ct.RowsAffected(), nil
}

func (s *Storage) BulkUpdatePaymentStatus(ctx context.Context, ids []uint64, paymentStatus string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET payment_status = $2, updated_at = now() WHERE id = ANY($1)
`, ids, paymentStatus)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update payment status")
	}
	return ct.RowsAffected(), nil
}

func (s *Storage) BulkUpdateLocation(ctx context.Context, ids []uint64, location string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET current_location = $2, updated_at = now() WHERE id = ANY($1)
`, ids, location)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update location")
	}
	return ct.RowsAffected(), nil
}

func (s *Storage) BulkUpdateETA(ctx context.Context, ids []uint64, eta time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments SET estimated_delivery = $2, updated_at = now() WHERE id = ANY($1)
`, ids, eta.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "bulk update eta")
	}
	return ct.RowsAffected(), nil
}

// BulkDeleteShipments удаляет пачку вместе с историей событий и отдаёт
// слоты контейнеров — одна транзакция на весь список.
func (s *Storage) BulkDeleteShipments(ctx context.Context, ids []uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
UPDATE containers c
SET current_count = GREATEST(c.current_count - sub.cnt, 0), updated_at = now()
FROM (
  SELECT container_id, COUNT(*) AS cnt
  FROM shipments
  WHERE id = ANY($1) AND container_id IS NOT NULL
  GROUP BY container_id
) sub
WHERE c.id = sub.container_id
`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "release container slots")
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM events WHERE parent_type = $1 AND parent_id = ANY($2)
`, models.EventParentShipment, ids); err != nil {
		return 0, errors.Wrap(err, "delete shipment events")
	}

	ct, err := tx.Exec(ctx, `DELETE FROM shipments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete shipments")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return ct.RowsAffected(), nil
}

// ShipmentExport — полная проекция для read-only экспорта.
type ShipmentExport struct {
	Shipment *models.Shipment `json:"shipment"`
	Events   []*models.Event  `json:"events"`
}

func (s *Storage) ExportShipments(ctx context.Context, ids []uint64) ([]*ShipmentExport, error) {
	shipments, err := s.GetShipmentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*ShipmentExport, 0, len(shipments))
	for _, sh := range shipments {
		evs, err := s.ListEvents(ctx, models.EventParentShipment, sh.ID, 500, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, &ShipmentExport{Shipment: sh, Events: evs})
	}
	return out, nil
}
