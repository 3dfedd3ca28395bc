package models

import "time"

// Жизненный цикл контейнера. "Активные" (могут принимать отправления) —
// всё до DELIVERED включительно IN_TRANSIT, плюс свободные слоты.
const (
	ContainerStatusCreated           = "CREATED"
	ContainerStatusWaitingForLoading = "WAITING_FOR_LOADING"
	ContainerStatusLoaded            = "LOADED"
	ContainerStatusInTransit         = "IN_TRANSIT"
	ContainerStatusDelivered         = "DELIVERED"
)

type Container struct {
	ID              uint64
	ContainerNumber string
	MaxCapacity     int32
	CurrentCount    int32
	Status          string

	CurrentLocation    *string
	LastLocationUpdate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ContainerCreateInput struct {
	ContainerNumber string
	MaxCapacity     int32
	Status          string
}

// Accepting говорит, готов ли контейнер принять ещё одно отправление.
// Сравнение двух колонок — поэтому фильтр "активных" доводится в памяти,
// а не в WHERE (см. pgstore.ListActiveContainers).
func (c *Container) Accepting() bool {
	switch c.Status {
	case ContainerStatusCreated, ContainerStatusWaitingForLoading,
		ContainerStatusLoaded, ContainerStatusInTransit:
		return c.CurrentCount < c.MaxCapacity
	}
	return false
}

func IsContainerStatus(s string) bool {
	switch s {
	case ContainerStatusCreated, ContainerStatusWaitingForLoading,
		ContainerStatusLoaded, ContainerStatusInTransit, ContainerStatusDelivered:
		return true
	}
	return false
}
