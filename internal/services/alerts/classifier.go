package alerts

import (
	"time"

	"github.com/cargodesk/consotrack/internal/models"
)

// WarningWindow — фиксированное окно "скоро срок" перед расчётной датой.
const WarningWindow = 3 * 24 * time.Hour

// Classify — чистая классификация уровня срочности. Второе значение false,
// когда расчётной даты нет и классифицировать нечего (кэшированный уровень
// не трогаем).
func Classify(now time.Time, estimatedDelivery *time.Time, status string) (string, bool) {
	if status == models.ShipmentStatusDelivered {
		return models.AlertStatusDelivered, true
	}
	if estimatedDelivery == nil {
		return models.AlertStatusUnset, false
	}
	eta := estimatedDelivery.UTC()
	if now.After(eta) {
		return models.AlertStatusOverdue, true
	}
	if !eta.After(now.Add(WarningWindow)) {
		return models.AlertStatusWarning, true
	}
	return models.AlertStatusOnTime, true
}
