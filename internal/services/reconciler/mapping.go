package reconciler

import (
	"strings"

	"github.com/cargodesk/consotrack/internal/models"
)

// Маппинг свободного текста фида в канонический статус: упорядоченный
// список (подстрока -> статус), первый матч выигрывает. Подстрочное
// сопоставление заведомо лоссивное, поэтому порядок — часть контракта.
type mappingRule struct {
	substr    string
	canonical string
}

var mappingRules = []mappingRule{
	{"DELIVERED", models.ShipmentStatusDelivered},
	{"TRANSIT", models.ShipmentStatusInTransit},
	{"PENDING", models.ShipmentStatusPending},
}

// MapRawStatus возвращает канонический статус и признак того, что маппинг
// вообще сработал. Нераспознанный текст — не ошибка: статус не меняем,
// метаданные (локация/прогресс) всё равно могут примениться.
func MapRawStatus(raw string) (string, bool) {
	up := strings.ToUpper(raw)
	for _, r := range mappingRules {
		if strings.Contains(up, r.substr) {
			return r.canonical, true
		}
	}
	return "", false
}
