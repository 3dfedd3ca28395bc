package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed"
)

// FakeClient — детерминированная заглушка фида для локальной разработки:
// статус выводится из номера отправления, часть треков "доставлена".
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) GetShipmentStatus(ctx context.Context, trackingNumber string) (trackingfeed.Result, error) {
	now := time.Now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	// 20% треков считаем доставленными
	raw := "VESSEL IN TRANSIT"
	progress := int32(40 + v%50)
	if v%5 == 0 {
		raw = "DELIVERED TO CONSIGNEE"
		progress = 100
	}

	loc := "Consolidation hub"
	return trackingfeed.Result{
		StatusRaw: raw,
		Location:  &loc,
		Progress:  &progress,
		StatusAt:  &now,
	}, nil
}
