package trackingfeed

import (
	"context"
	"time"
)

// Result — сырой best-effort ответ внешнего источника. StatusRaw — свободный
// текст перевозчика; каноникализация — забота reconciler, не клиента.
type Result struct {
	StatusRaw string
	Location  *string
	Progress  *int32
	StatusAt  *time.Time
}

type Client interface {
	GetShipmentStatus(ctx context.Context, trackingNumber string) (Result, error)
}
