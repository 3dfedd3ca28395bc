package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/broker/messages"
	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed"
	"github.com/cargodesk/consotrack/internal/models"
	"github.com/cargodesk/consotrack/internal/storage/pgstore"
)

type Repository interface {
	ClaimDueSyncShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error)
	ApplyStatusChange(ctx context.Context, upd pgstore.ShipmentSyncUpdate) error
	StampStatusSync(ctx context.Context, id uint64, checkedAt, nextSyncAt time.Time, location *string, progress *int32) error
	RecordSyncFailure(ctx context.Context, id uint64, failMsg string, nextSyncAt time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Auditor interface {
	Record(ctx context.Context, ch audit.Change)
}

// Detail — поштучный итог сверки; OldStatus/NewStatus заполнены только
// при фактической смене статуса.
type Detail struct {
	ShipmentID uint64 `json:"shipmentId"`
	OldStatus  string `json:"oldStatus,omitempty"`
	NewStatus  string `json:"newStatus,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Summary struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`

	Details []Detail `json:"details"`
}

// Reconciler сверяет канонический статус отправлений с внешним фидом.
// Дисциплина — одна транзакция на отправление: плохая запись не валит
// проход, следующий свип докроет пропущенное.
type Reconciler struct {
	repo     Repository
	feed     trackingfeed.Client
	producer Producer
	rl       RateLimiter
	auditor  Auditor

	topic string

	planner *Planner

	sweepInterval      time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastSweepUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, feed trackingfeed.Client, producer Producer, rl RateLimiter, auditor Auditor, topic string) *Reconciler {
	return &Reconciler{
		repo: repo, feed: feed, producer: producer, rl: rl, auditor: auditor, topic: topic,
		planner:            DefaultPlanner(),
		sweepInterval:      2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Reconciler) WithSettings(sweepInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Reconciler {
	if sweepInterval > 0 {
		r.sweepInterval = sweepInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

func (r *Reconciler) WithPlanner(cfg PlannerConfig) *Reconciler {
	r.planner = NewPlanner(cfg, nil)
	return r
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (r *Reconciler) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastSweepAt    *time.Time `json:"lastSweepAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Reconciler) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastSweepUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastSweepAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce — один проход: забрать пачку, сверить каждую независимо.
// Отправления самодостаточны, поэтому фан-аут безопасен; сериализация
// нужна только counts контейнеров, и она живёт в storage.
func (r *Reconciler) RunOnce(ctx context.Context) *Summary {
	now := time.Now().UTC()
	r.lastSweepUnixNano.Store(now.UnixNano())

	sum := &Summary{}

	items, err := r.repo.ClaimDueSyncShipments(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		r.lastErrorMu.Lock()
		r.lastError = err.Error()
		r.lastErrorMu.Unlock()
		return sum
	}
	r.totalClaimed.Add(int64(len(items)))
	sum.Total = len(items)

	var mu sync.Mutex
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		shCopy := sh
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			d := r.processOne(ctx, shCopy)
			mu.Lock()
			sum.Details = append(sum.Details, d)
			if d.Error != "" {
				sum.Errors++
			} else if d.NewStatus != "" {
				sum.Updated++
			}
			mu.Unlock()

			if d.Error != "" {
				r.totalErrors.Add(1)
				r.lastErrorMu.Lock()
				r.lastError = d.Error
				r.lastErrorMu.Unlock()
				slog.Error("reconcile shipment", "shipment_id", shCopy.ID, "error", d.Error)
			}
			r.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
	return sum
}

func (r *Reconciler) processOne(ctx context.Context, sh *models.Shipment) Detail {
	now := time.Now().UTC()
	d := Detail{ShipmentID: sh.ID}

	if r.rl != nil && r.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:feed:%s", now.Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, minuteKey, r.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			d.Error = err.Error()
			return d
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("feed rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	res, err := r.feed.GetShipmentStatus(ctx, sh.TrackingNumber)
	if err != nil {
		// Фид недоступен: last_status_sync не трогаем, следующая попытка —
		// по backoff-расписанию.
		nextFail := sh.SyncFailCount + 1
		nextSync := now.Add(r.planner.BackoffDelay(nextFail))
		if rerr := r.repo.RecordSyncFailure(ctx, sh.ID, err.Error(), nextSync); rerr != nil {
			d.Error = rerr.Error()
			return d
		}
		d.Error = err.Error()
		return d
	}

	mapped, ok := MapRawStatus(res.StatusRaw)

	planStatus := sh.Status
	if ok {
		planStatus = mapped
	}
	nextSync := now.Add(r.planner.NextSyncDelay(planStatus))

	if ok && mapped != sh.Status {
		// Известный риск: обратные переходы (например IN_TRANSIT -> PENDING)
		// не блокируются — применяем то, что дал маппинг.
		eventTime := now
		if res.StatusAt != nil {
			eventTime = res.StatusAt.UTC()
		}
		upd := pgstore.ShipmentSyncUpdate{
			ShipmentID: sh.ID,
			CheckedAt:  now,
			Status:     mapped,
			StatusRaw:  res.StatusRaw,
			Location:   res.Location,
			Progress:   res.Progress,
			NextSyncAt: nextSync,
			Event: &models.EventCreateInput{
				ParentType: models.EventParentShipment,
				ParentID:   sh.ID,
				Status:     mapped,
				StatusRaw:  res.StatusRaw,
				Location:   res.Location,
				EventTime:  eventTime,
			},
		}
		if err := r.repo.ApplyStatusChange(ctx, upd); err != nil {
			d.Error = err.Error()
			return d
		}
		d.OldStatus = sh.Status
		d.NewStatus = mapped

		if r.auditor != nil {
			r.auditor.Record(ctx, audit.Change{
				EntityType:  "shipment",
				EntityID:    sh.ID,
				Action:      models.AuditActionUpdate,
				PerformedBy: "status-reconciler",
				Description: "status " + sh.Status + " -> " + mapped,
				Old:         map[string]string{"status": sh.Status},
				New:         map[string]string{"status": mapped},
			})
		}

		r.publishStatusChanged(ctx, sh, mapped, res, now)
		return d
	}

	// Статус не поменялся (или не распознан): фиксируем сверку и метаданные.
	if err := r.repo.StampStatusSync(ctx, sh.ID, now, nextSync, res.Location, res.Progress); err != nil {
		d.Error = err.Error()
	}
	return d
}

// publishStatusChanged — best-effort: брокер может быть недоступен, смена
// статуса уже закоммичена и терять её из-за уведомления нельзя.
func (r *Reconciler) publishStatusChanged(ctx context.Context, sh *models.Shipment, newStatus string, res trackingfeed.Result, now time.Time) {
	if r.producer == nil || r.topic == "" {
		return
	}

	msg := messages.ShipmentStatusChanged{
		ShipmentID: sh.ID,
		CheckedAt:  now,
		OldStatus:  sh.Status,
		NewStatus:  newStatus,
		StatusRaw:  res.StatusRaw,
		Location:   res.Location,
		Progress:   res.Progress,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal status changed", "shipment_id", sh.ID, "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%d", sh.ID))
	if err := r.producer.Publish(ctx, r.topic, key, b); err != nil {
		slog.Error("publish status changed", "shipment_id", sh.ID, "error", err.Error())
	}
}
