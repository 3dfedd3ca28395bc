package models

import "time"

const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// AuditEntry — write-only журнал изменений. Ошибка записи никогда не
// прерывает породившую её операцию (см. internal/audit).
type AuditEntry struct {
	ID         string
	EntityType string
	EntityID   uint64
	Action     string

	PerformedBy string
	Description string

	// JSON-снимки до/после, если применимо.
	OldValue *string
	NewValue *string

	CreatedAt time.Time
}
