package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/models"
)

// ShipmentSyncUpdate — результат одной сверки с внешним фидом.
// Если Status непустой — это смена канонического статуса, и она должна
// лечь в одну транзакцию вместе со строкой события.
type ShipmentSyncUpdate struct {
	ShipmentID uint64

	CheckedAt time.Time

	Status    string
	StatusRaw string
	Location  *string
	Progress  *int32

	NextSyncAt time.Time

	Event *models.EventCreateInput
}

// ApplyStatusChange атомарно меняет статус отправления и дописывает
// событие: смена статуса без события (или наоборот) — несогласованное
// состояние, граница транзакции его исключает.
func (s *Storage) ApplyStatusChange(ctx context.Context, upd ShipmentSyncUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  current_location = COALESCE($4, current_location),
  progress = COALESCE($5, progress),
  last_status_sync = $2,
  next_sync_at = $6,
  sync_fail_count = 0,
  last_error = NULL,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), upd.Status, upd.Location, upd.Progress, upd.NextSyncAt.UTC())
	if err != nil {
		return errors.Wrap(err, "update shipment status")
	}

	if upd.Event != nil {
		if err := insertEventTx(ctx, tx, *upd.Event); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// StampStatusSync — путь "сверились, статус не поменялся": фиксируем
// только время сверки и метаданные, если фид их прислал.
func (s *Storage) StampStatusSync(ctx context.Context, id uint64, checkedAt, nextSyncAt time.Time, location *string, progress *int32) error {
	_, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  last_status_sync = $2,
  next_sync_at = $3,
  current_location = COALESCE($4, current_location),
  progress = COALESCE($5, progress),
  sync_fail_count = 0,
  last_error = NULL,
  updated_at = now()
WHERE id = $1
`, id, checkedAt.UTC(), nextSyncAt.UTC(), location, progress)
	return errors.Wrap(err, "stamp status sync")
}

// RecordSyncFailure — внешний фид недоступен. last_status_sync намеренно
// НЕ трогаем (асимметрия с путём "без изменений"): следующий свип придёт
// за данными как в первый раз.
func (s *Storage) RecordSyncFailure(ctx context.Context, id uint64, failMsg string, nextSyncAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  sync_fail_count = sync_fail_count + 1,
  last_error = $2,
  next_sync_at = $3,
  updated_at = now()
WHERE id = $1
`, id, failMsg, nextSyncAt.UTC())
	return errors.Wrap(err, "record sync failure")
}
