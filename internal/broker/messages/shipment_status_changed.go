package messages

import "time"

// ShipmentStatusChanged публикуется воркером после успешно применённой
// смены канонического статуса. API-процесс по нему сбрасывает кэш
// текущего состояния; внешние потребители могут слать уведомления.
type ShipmentStatusChanged struct {
	ShipmentID uint64    `json:"shipment_id"`
	CheckedAt  time.Time `json:"checked_at"`

	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	StatusRaw string `json:"status_raw,omitempty"`

	Location *string `json:"location,omitempty"`
	Progress *int32  `json:"progress,omitempty"`
}
