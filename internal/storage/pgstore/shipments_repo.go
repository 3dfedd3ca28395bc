package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

const shipmentColumns = `
  id, tracking_number, vehicle_vin, description,
  status, delivery_alert_status, estimated_delivery,
  progress, current_location,
  payment_status, assigned_user_id, container_id,
  auto_status_update, last_status_sync, next_sync_at,
  sync_fail_count, last_error,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.VehicleVIN, &sh.Description,
		&sh.Status, &sh.DeliveryAlertStatus, &sh.EstimatedDelivery,
		&sh.Progress, &sh.CurrentLocation,
		&sh.PaymentStatus, &sh.AssignedUserID, &sh.ContainerID,
		&sh.AutoStatusUpdate, &sh.LastStatusSync, &sh.NextSyncAt,
		&sh.SyncFailCount, &sh.LastError,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_number, vehicle_vin, description,
  status, estimated_delivery, auto_status_update,
  next_sync_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (tracking_number)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING`+shipmentColumns,
		in.TrackingNumber, in.VehicleVIN, in.Description,
		models.ShipmentStatusPending, in.EstimatedDelivery, in.AutoStatusUpdate,
		now, now)

	sh, err := scanShipment(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert shipment")
	}
	return sh, nil
}

func (s *Storage) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, len(ids))
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("shipment", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// UpdateShipment применяет частичный патч; nil-поля не трогаются.
// delivery_alert_status и status сюда намеренно не входят: первое меняет
// только alert-свип, второе — reconciler либо bulk-операция.
func (s *Storage) UpdateShipment(ctx context.Context, id uint64, p models.ShipmentPatch) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
UPDATE shipments
SET
  description        = COALESCE($2, description),
  estimated_delivery = COALESCE($3, estimated_delivery),
  progress           = COALESCE($4, progress),
  current_location   = COALESCE($5, current_location),
  payment_status     = COALESCE($6, payment_status),
  assigned_user_id   = COALESCE($7, assigned_user_id),
  auto_status_update = COALESCE($8, auto_status_update),
  updated_at         = now()
WHERE id = $1
RETURNING`+shipmentColumns,
		id, p.Description, p.EstimatedDelivery, p.Progress,
		p.CurrentLocation, p.PaymentStatus, p.AssignedUserID, p.AutoStatusUpdate)

	sh, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("shipment", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update shipment")
	}
	return sh, nil
}

// DeleteShipment удаляет отправление вместе с историей событий и
// освобождает слот контейнера, если отправление было прикреплено.
func (s *Storage) DeleteShipment(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var containerID *uint64
	err = tx.QueryRow(ctx, `SELECT container_id FROM shipments WHERE id = $1 FOR UPDATE`, id).Scan(&containerID)
	if err == pgx.ErrNoRows {
		return errs.NotFound("shipment", id)
	}
	if err != nil {
		return errors.Wrap(err, "select shipment for delete")
	}

	if containerID != nil {
		_, err = tx.Exec(ctx, `
UPDATE containers SET current_count = GREATEST(current_count - 1, 0), updated_at = now() WHERE id = $1
`, *containerID)
		if err != nil {
			return errors.Wrap(err, "release container slot")
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE parent_type = $1 AND parent_id = $2`,
		models.EventParentShipment, id); err != nil {
		return errors.Wrap(err, "delete shipment events")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "delete shipment")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) RefreshShipment(ctx context.Context, id uint64) error {
	ct, err := s.db.Exec(ctx, `UPDATE shipments SET next_sync_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "refresh shipment")
	}
	if ct.RowsAffected() == 0 {
		return errs.NotFound("shipment", id)
	}
	return nil
}

// ClaimDueSyncShipments выбирает пачку отправлений, готовых к сверке со
// внешним фидом, и "бронирует" их, чтобы они не попадали в повторную
// выборку, пока воркер их обрабатывает. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueSyncShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE next_sync_at <= $1
  AND auto_status_update
  AND status <> $2
ORDER BY next_sync_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.ShipmentStatusDelivered, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}
	defer rows.Close()

	var picked []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due shipment")
		}
		picked = append(picked, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sh := range picked {
		_, err := tx.Exec(ctx, `UPDATE shipments SET next_sync_at = $2, updated_at = now() WHERE id = $1`, sh.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		sh.NextSyncAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// ListAlertCandidates — keyset-выборка рабочего множества alert-свипа:
// недоставленные отправления с заданной расчётной датой.
func (s *Storage) ListAlertCandidates(ctx context.Context, afterID uint64, limit int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE status <> $1
  AND estimated_delivery IS NOT NULL
  AND id > $2
ORDER BY id ASC
LIMIT $3
`, models.ShipmentStatusDelivered, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select alert candidates")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert candidate")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateAlertStatus пишет новый уровень только если он отличается от
// кэшированного; возвращает, была ли запись.
func (s *Storage) UpdateAlertStatus(ctx context.Context, id uint64, level string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE shipments
SET delivery_alert_status = $2, updated_at = now()
WHERE id = $1 AND delivery_alert_status <> $2
`, id, level)
	if err != nil {
		return false, errors.Wrap(err, "update alert status")
	}
	return ct.RowsAffected() > 0, nil
}
