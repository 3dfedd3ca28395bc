package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS containers (
  id BIGSERIAL PRIMARY KEY,
  container_number TEXT NOT NULL,
  max_capacity INT NOT NULL,
  current_count INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  current_location TEXT NULL,
  last_location_update TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (container_number),
  CHECK (current_count >= 0 AND current_count <= max_capacity)
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  vehicle_vin TEXT NOT NULL,
  description TEXT NULL,
  status TEXT NOT NULL,
  delivery_alert_status TEXT NOT NULL DEFAULT '',
  estimated_delivery TIMESTAMPTZ NULL,
  progress INT NOT NULL DEFAULT 0,
  current_location TEXT NULL,
  payment_status TEXT NOT NULL DEFAULT 'UNPAID',
  assigned_user_id TEXT NULL,
  container_id BIGINT NULL REFERENCES containers(id) ON DELETE SET NULL,
  auto_status_update BOOLEAN NOT NULL DEFAULT TRUE,
  last_status_sync TIMESTAMPTZ NULL,
  next_sync_at TIMESTAMPTZ NOT NULL,
  sync_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (tracking_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_next_sync_at ON shipments(next_sync_at)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_alert_candidates ON shipments(status, estimated_delivery) WHERE estimated_delivery IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_container_id ON shipments(container_id)`,
		`
CREATE TABLE IF NOT EXISTS events (
  id BIGSERIAL PRIMARY KEY,
  parent_type TEXT NOT NULL,
  parent_id BIGINT NOT NULL,
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  completed BOOLEAN NOT NULL DEFAULT FALSE,
  event_time TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_events_parent_event_time ON events(parent_type, parent_id, event_time DESC, id DESC)`,
		// Дедупликация событий: повторная сверка с тем же сигналом не
		// должна плодить строки.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_events_dedup ON events(parent_type, parent_id, status_raw, event_time, location, description)`,
		`
CREATE TABLE IF NOT EXISTS audit_log (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id BIGINT NOT NULL,
  action TEXT NOT NULL,
  performed_by TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  old_value JSONB NULL,
  new_value JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS invoices (
  id BIGSERIAL PRIMARY KEY,
  container_id BIGINT NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
  number TEXT NOT NULL,
  amount NUMERIC(14,2) NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  issued_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_container_id ON invoices(container_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
