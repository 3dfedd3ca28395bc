package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/models"
)

func insertEventTx(ctx context.Context, tx pgx.Tx, in models.EventCreateInput) error {
	loc := ""
	if in.Location != nil {
		loc = *in.Location
	}
	desc := ""
	if in.Description != nil {
		desc = *in.Description
	}

	_, err := tx.Exec(ctx, `
INSERT INTO events (
  parent_type, parent_id, status, status_raw,
  location, description, latitude, longitude, completed,
  event_time, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (parent_type, parent_id, status_raw, event_time, location, description) DO NOTHING
`, in.ParentType, in.ParentID, in.Status, in.StatusRaw,
		loc, desc, in.Latitude, in.Longitude, in.Completed,
		in.EventTime.UTC())
	if err != nil {
		return errors.Wrap(err, "insert event")
	}
	return nil
}

// AppendEvent — append-only вставка вне транзакций сверки (ручные события,
// события контейнера). Дубли молча схлопываются дедуп-индексом.
func (s *Storage) AppendEvent(ctx context.Context, in models.EventCreateInput) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertEventTx(ctx, tx, in); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// ListEvents отдаёт историю по родителю: event_time DESC, при равенстве —
// порядок вставки (id DESC) как носитель причинности.
func (s *Storage) ListEvents(ctx context.Context, parentType string, parentID uint64, limit, offset int) ([]*models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, parent_type, parent_id, status, status_raw,
  location, description, latitude, longitude, completed,
  event_time, created_at
FROM events
WHERE parent_type = $1 AND parent_id = $2
ORDER BY event_time DESC, id DESC
LIMIT $3 OFFSET $4
`, parentType, parentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var e models.Event
		var location, description string
		if err := rows.Scan(
			&e.ID, &e.ParentType, &e.ParentID, &e.Status, &e.StatusRaw,
			&location, &description, &e.Latitude, &e.Longitude, &e.Completed,
			&e.EventTime, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if location != "" {
			e.Location = &location
		}
		if description != "" {
			e.Description = &description
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
