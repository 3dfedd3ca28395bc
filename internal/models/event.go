package models

import "time"

// Родитель события: отправление или контейнер.
const (
	EventParentShipment  = "shipment"
	EventParentContainer = "container"
)

// Event — неизменяемая запись наблюдаемого изменения состояния.
// EventTime — время события у источника, CreatedAt — время записи у нас;
// при равных EventTime причинность восстанавливается по порядку вставки.
type Event struct {
	ID         uint64
	ParentType string
	ParentID   uint64

	Status      string
	StatusRaw   string
	Location    *string
	Description *string
	Latitude    *float64
	Longitude   *float64
	Completed   bool

	EventTime time.Time
	CreatedAt time.Time
}

type EventCreateInput struct {
	ParentType string
	ParentID   uint64

	Status      string
	StatusRaw   string
	Location    *string
	Description *string
	Latitude    *float64
	Longitude   *float64
	Completed   bool

	EventTime time.Time
}
