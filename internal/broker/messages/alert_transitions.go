package messages

import "time"

// AlertTransition — один переход уровня срочности, произведённый alert-свипом.
type AlertTransition struct {
	ShipmentID uint64 `json:"shipment_id"`
	OldLevel   string `json:"old_level"`
	NewLevel   string `json:"new_level"`
}

// AlertTransitions — пачка переходов одного свипа; доставка уведомлений —
// забота потребителя топика, не этого сервиса.
type AlertTransitions struct {
	SweptAt     time.Time         `json:"swept_at"`
	Transitions []AlertTransition `json:"transitions"`
}
