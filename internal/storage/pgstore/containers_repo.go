package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

const containerColumns = `
  id, container_number, max_capacity, current_count, status,
  current_location, last_location_update, created_at, updated_at`

func scanContainer(row pgx.Row) (*models.Container, error) {
	var c models.Container
	if err := row.Scan(
		&c.ID, &c.ContainerNumber, &c.MaxCapacity, &c.CurrentCount, &c.Status,
		&c.CurrentLocation, &c.LastLocationUpdate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) CreateContainer(ctx context.Context, in models.ContainerCreateInput) (*models.Container, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO containers (container_number, max_capacity, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (container_number)
DO UPDATE SET updated_at = containers.updated_at
RETURNING`+containerColumns,
		in.ContainerNumber, in.MaxCapacity, in.Status, now)

	c, err := scanContainer(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert container")
	}
	return c, nil
}

func (s *Storage) GetContainer(ctx context.Context, id uint64) (*models.Container, error) {
	row := s.db.QueryRow(ctx, `SELECT`+containerColumns+` FROM containers WHERE id = $1`, id)
	c, err := scanContainer(row)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("container", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select container")
	}
	return c, nil
}

// AttachShipment прикрепляет отправление к контейнеру в одной транзакции:
// условный инкремент current_count (проверка слота прямо в WHERE — два
// конкурентных attach за последний слот не пройдут оба) плюс установка
// внешнего ключа. Переприкрепление освобождает слот старого контейнера.
func (s *Storage) AttachShipment(ctx context.Context, shipmentID, containerID uint64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current *uint64
	err = tx.QueryRow(ctx, `SELECT container_id FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID).Scan(&current)
	if err == pgx.ErrNoRows {
		return errs.NotFound("shipment", shipmentID)
	}
	if err != nil {
		return errors.Wrap(err, "select shipment for attach")
	}

	if current != nil && *current == containerID {
		// Уже там — идемпотентный no-op.
		return nil
	}

	ct, err := tx.Exec(ctx, `
UPDATE containers
SET current_count = current_count + 1, updated_at = now()
WHERE id = $1
  AND current_count < max_capacity
  AND status = ANY($2)
`, containerID, acceptingStatuses())
	if err != nil {
		return errors.Wrap(err, "claim container slot")
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM containers WHERE id = $1)`, containerID).Scan(&exists); err != nil {
			return errors.Wrap(err, "check container")
		}
		if !exists {
			return errs.NotFound("container", containerID)
		}
		return errs.CapacityExceeded(containerID)
	}

	if current != nil {
		_, err = tx.Exec(ctx, `
UPDATE containers SET current_count = GREATEST(current_count - 1, 0), updated_at = now() WHERE id = $1
`, *current)
		if err != nil {
			return errors.Wrap(err, "release previous slot")
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE shipments SET container_id = $2, updated_at = now() WHERE id = $1`,
		shipmentID, containerID); err != nil {
		return errors.Wrap(err, "set shipment container")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// DetachShipment снимает отправление с контейнера. Отправление без
// контейнера — no-op без ошибки (идемпотентный detach).
func (s *Storage) DetachShipment(ctx context.Context, shipmentID uint64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current *uint64
	err = tx.QueryRow(ctx, `SELECT container_id FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID).Scan(&current)
	if err == pgx.ErrNoRows {
		return errs.NotFound("shipment", shipmentID)
	}
	if err != nil {
		return errors.Wrap(err, "select shipment for detach")
	}

	if current == nil {
		return nil
	}

	if _, err := tx.Exec(ctx, `UPDATE shipments SET container_id = NULL, updated_at = now() WHERE id = $1`,
		shipmentID); err != nil {
		return errors.Wrap(err, "clear shipment container")
	}
	if _, err := tx.Exec(ctx, `
UPDATE containers SET current_count = GREATEST(current_count - 1, 0), updated_at = now() WHERE id = $1
`, *current); err != nil {
		return errors.Wrap(err, "release container slot")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// ListActiveContainers: предикат "активен" сравнивает две колонки
// (current_count < max_capacity), поэтому статусная часть уходит в WHERE,
// а сравнение и пагинация доводятся в памяти — total отражает именно
// пост-фильтрованное множество.
func (s *Storage) ListActiveContainers(ctx context.Context, limit, offset int) ([]*models.Container, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+containerColumns+`
FROM containers
WHERE status = ANY($1)
ORDER BY id ASC
`, acceptingStatuses())
	if err != nil {
		return nil, 0, errors.Wrap(err, "select containers")
	}
	defer rows.Close()

	var active []*models.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan container")
		}
		if c.CurrentCount < c.MaxCapacity {
			active = append(active, c)
		}
	}
	if rows.Err() != nil {
		return nil, 0, errors.Wrap(rows.Err(), "rows")
	}

	total := len(active)
	if offset >= total {
		return []*models.Container{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return active[offset:end], total, nil
}

// UpdateContainerLocation фиксирует новую геопозицию контейнера и в той же
// транзакции дописывает событие контейнера.
func (s *Storage) UpdateContainerLocation(ctx context.Context, id uint64, location string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `
UPDATE containers
SET current_location = $2, last_location_update = $3, updated_at = now()
WHERE id = $1
RETURNING status
`, id, location, at.UTC()).Scan(&status)
	if err == pgx.ErrNoRows {
		return errs.NotFound("container", id)
	}
	if err != nil {
		return errors.Wrap(err, "update container location")
	}

	if err := insertEventTx(ctx, tx, models.EventCreateInput{
		ParentType: models.EventParentContainer,
		ParentID:   id,
		Status:     status,
		Location:   &location,
		EventTime:  at.UTC(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func acceptingStatuses() []string {
	return []string{
		models.ContainerStatusCreated,
		models.ContainerStatusWaitingForLoading,
		models.ContainerStatusLoaded,
		models.ContainerStatusInTransit,
	}
}
