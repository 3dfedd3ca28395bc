package models

import "time"

// Канонические статусы отправления (см. mapping в reconciler).
const (
	ShipmentStatusPending   = "PENDING"
	ShipmentStatusInTransit = "IN_TRANSIT"
	ShipmentStatusDelivered = "DELIVERED"
)

// Уровни срочности по расчётной дате доставки. Кэшируемое производное
// значение: пересчитывается только alert-свипом, клиент его не задаёт.
const (
	AlertStatusUnset     = ""
	AlertStatusOnTime    = "ON_TIME"
	AlertStatusWarning   = "WARNING"
	AlertStatusOverdue   = "OVERDUE"
	AlertStatusDelivered = "DELIVERED"
)

type Shipment struct {
	ID             uint64
	TrackingNumber string
	VehicleVIN     string
	Description    *string

	Status              string
	DeliveryAlertStatus string
	EstimatedDelivery   *time.Time
	Progress            int32
	CurrentLocation     *string

	PaymentStatus  string
	AssignedUserID *string

	ContainerID *uint64

	AutoStatusUpdate bool
	LastStatusSync   *time.Time
	NextSyncAt       time.Time
	SyncFailCount    int32
	LastError        *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShipmentCreateInput struct {
	TrackingNumber    string
	VehicleVIN        string
	Description       *string
	EstimatedDelivery *time.Time
	AutoStatusUpdate  bool
}

// ShipmentPatch — частичное обновление; nil-поле значит "не трогать".
type ShipmentPatch struct {
	Description       *string
	EstimatedDelivery *time.Time
	Progress          *int32
	CurrentLocation   *string
	PaymentStatus     *string
	AssignedUserID    *string
	AutoStatusUpdate  *bool
}

func IsCanonicalStatus(s string) bool {
	switch s {
	case ShipmentStatusPending, ShipmentStatusInTransit, ShipmentStatusDelivered:
		return true
	}
	return false
}
