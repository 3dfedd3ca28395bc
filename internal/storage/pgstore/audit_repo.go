package pgstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/models"
)

// InsertAuditEntry — единственная операция записи журнала; строки никогда
// не обновляются и не удаляются.
func (s *Storage) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO audit_log (
  id, entity_type, entity_id, action, performed_by,
  description, old_value, new_value, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, e.ID, e.EntityType, e.EntityID, e.Action, e.PerformedBy,
		e.Description, e.OldValue, e.NewValue, createdAt)
	if err != nil {
		return errors.Wrap(err, "insert audit entry")
	}
	return nil
}

func (s *Storage) ListAuditEntries(ctx context.Context, entityType string, entityID uint64, limit, offset int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, entity_type, entity_id, action, performed_by,
       description, old_value, new_value, created_at
FROM audit_log
WHERE entity_type = $1 AND entity_id = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select audit entries")
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.PerformedBy,
			&e.Description, &e.OldValue, &e.NewValue, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan audit entry")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
