package api

import (
	"github.com/cargodesk/consotrack/internal/models"
)

// Проекции в JSON-ответы. Nullable-поля отдаём как null, не как "".

func shipmentView(sh *models.Shipment) map[string]any {
	return map[string]any{
		"id":                  sh.ID,
		"trackingNumber":      sh.TrackingNumber,
		"vehicleVin":          sh.VehicleVIN,
		"description":         sh.Description,
		"status":              sh.Status,
		"deliveryAlertStatus": sh.DeliveryAlertStatus,
		"estimatedDelivery":   sh.EstimatedDelivery,
		"progress":            sh.Progress,
		"currentLocation":     sh.CurrentLocation,
		"paymentStatus":       sh.PaymentStatus,
		"assignedUserId":      sh.AssignedUserID,
		"containerId":         sh.ContainerID,
		"autoStatusUpdate":    sh.AutoStatusUpdate,
		"lastStatusSync":      sh.LastStatusSync,
		"nextSyncAt":          sh.NextSyncAt,
		"syncFailCount":       sh.SyncFailCount,
		"lastError":           sh.LastError,
		"createdAt":           sh.CreatedAt,
		"updatedAt":           sh.UpdatedAt,
	}
}

func containerView(c *models.Container) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"containerNumber":    c.ContainerNumber,
		"maxCapacity":        c.MaxCapacity,
		"currentCount":       c.CurrentCount,
		"status":             c.Status,
		"currentLocation":    c.CurrentLocation,
		"lastLocationUpdate": c.LastLocationUpdate,
		"accepting":          c.Accepting(),
		"createdAt":          c.CreatedAt,
		"updatedAt":          c.UpdatedAt,
	}
}

func eventViews(evs []*models.Event) []map[string]any {
	out := make([]map[string]any, 0, len(evs))
	for _, e := range evs {
		out = append(out, map[string]any{
			"id":          e.ID,
			"parentType":  e.ParentType,
			"parentId":    e.ParentID,
			"status":      e.Status,
			"statusRaw":   e.StatusRaw,
			"location":    e.Location,
			"description": e.Description,
			"latitude":    e.Latitude,
			"longitude":   e.Longitude,
			"completed":   e.Completed,
			"eventTime":   e.EventTime,
			"createdAt":   e.CreatedAt,
		})
	}
	return out
}

func invoiceView(inv *models.Invoice) map[string]any {
	return map[string]any{
		"id":          inv.ID,
		"containerId": inv.ContainerID,
		"number":      inv.Number,
		"amount":      inv.Amount.StringFixed(2),
		"currency":    inv.Currency,
		"issuedAt":    inv.IssuedAt,
		"createdAt":   inv.CreatedAt,
	}
}
