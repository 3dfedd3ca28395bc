package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cargodesk/consotrack/config"
	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/broker/kafka"
	"github.com/cargodesk/consotrack/internal/broker/messages"
	"github.com/cargodesk/consotrack/internal/cache/rediscache"
	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed"
	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed/fake"
	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed/feedhttp"
	"github.com/cargodesk/consotrack/internal/services/alerts"
	"github.com/cargodesk/consotrack/internal/services/reconciler"
	"github.com/cargodesk/consotrack/internal/storage/pgstore"
)

// workerStorage — всё, что воркеру нужно от хранилища.
type workerStorage interface {
	reconciler.Repository
	alerts.Repository
	audit.Repository
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) reconciler.Producer
	newRateLimiter func(cfg *config.Config) reconciler.RateLimiter
	newFeedClient  func(cfg *config.Config) trackingfeed.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgstore.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) reconciler.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) reconciler.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newFeedClient: func(cfg *config.Config) trackingfeed.Client {
			// По умолчанию — детерминированный fake; http-фид включается
			// явно в конфиге.
			if cfg.ConsoTrack.TrackingFeedMode == "http" && cfg.ConsoTrack.TrackingFeedBaseURL != "" {
				timeout := time.Duration(cfg.ConsoTrack.TrackingFeedTimeoutSeconds) * time.Second
				if timeout <= 0 {
					timeout = 10 * time.Second
				}
				return feedhttp.New(cfg.ConsoTrack.TrackingFeedBaseURL, cfg.ConsoTrack.TrackingFeedAPIKey, timeout)
			}
			return fake.New()
		},
	}
}

func statusChangedTopic(cfg *config.Config) string {
	if cfg.Kafka.StatusChangedTopicName != "" {
		return cfg.Kafka.StatusChangedTopicName
	}
	return "shipment.status_changed"
}

func alertTransitionsTopic(cfg *config.Config) string {
	if cfg.Kafka.AlertTransitionsTopicName != "" {
		return cfg.Kafka.AlertTransitionsTopicName
	}
	return "shipment.alert_transitions"
}

func RunConsoWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts *workerHTTPOpts) error {
	syncInterval := time.Duration(cfg.ConsoTrack.WorkerSyncIntervalSeconds) * time.Second
	if syncInterval <= 0 {
		syncInterval = 5 * time.Second
	}
	alertInterval := time.Duration(cfg.ConsoTrack.WorkerAlertIntervalSeconds) * time.Second
	if alertInterval <= 0 {
		alertInterval = 5 * time.Minute
	}
	batchSize := cfg.ConsoTrack.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.ConsoTrack.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.ConsoTrack.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.ConsoTrack.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	feed := f.newFeedClient(cfg)
	recorder := audit.NewRecorder(st)

	rec := reconciler.New(st, feed, producer, rl, recorder, statusChangedTopic(cfg)).
		WithSettings(syncInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfig(cfg))

	sweeper := alerts.NewSweeper(st, recorder)

	recErr := make(chan error, 1)
	go func() {
		recErr <- rec.Run(ctx)
	}()

	alertErr := make(chan error, 1)
	go func() {
		alertErr <- runAlertLoop(ctx, sweeper, producer, alertTransitionsTopic(cfg), alertInterval)
	}()

	httpErr := make(chan error, 1)
	if httpOpts != nil {
		httpOpts.reconciler = rec
		httpOpts.sweeper = sweeper
		httpOpts.producer = producer
		httpOpts.alertTopic = alertTransitionsTopic(cfg)
		httpOpts.cfg = cfg
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, *httpOpts)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-recErr:
		return err
	case err := <-alertErr:
		return err
	case err := <-httpErr:
		return err
	}
}

func plannerConfig(cfg *config.Config) reconciler.PlannerConfig {
	c := cfg.ConsoTrack
	return reconciler.PlannerConfig{
		InTransitMinDelay: time.Duration(c.WorkerNextSyncInTransitMinSeconds) * time.Second,
		InTransitMaxDelay: time.Duration(c.WorkerNextSyncInTransitMaxSeconds) * time.Second,
		PendingDelay:      time.Duration(c.WorkerNextSyncPendingSeconds) * time.Second,
		Backoff1:          time.Duration(c.WorkerBackoff1Seconds) * time.Second,
		Backoff2:          time.Duration(c.WorkerBackoff2Seconds) * time.Second,
		Backoff3:          time.Duration(c.WorkerBackoff3Seconds) * time.Second,
		Backoff4:          time.Duration(c.WorkerBackoff4Seconds) * time.Second,
	}
}

// runAlertLoop гоняет alert-свип по таймеру и публикует фактические
// переходы пачкой: доставка уведомлений — забота потребителей топика.
func runAlertLoop(ctx context.Context, sweeper *alerts.Sweeper, producer reconciler.Producer, topic string, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			sum, err := sweeper.Sweep(ctx)
			if err != nil {
				slog.Error("alert sweep failed", "error", err.Error())
				continue
			}
			slog.Info("alert sweep done",
				"overdue", sum.Overdue, "warning", sum.Warning, "on_time", sum.OnTime,
				"transitions", len(sum.Transitions), "errors", len(sum.Errors))
			publishAlertTransitions(ctx, producer, topic, sum)
		}
	}
}

func publishAlertTransitions(ctx context.Context, producer reconciler.Producer, topic string, sum *alerts.Summary) {
	if producer == nil || topic == "" || len(sum.Transitions) == 0 {
		return
	}
	msg := messages.AlertTransitions{SweptAt: time.Now().UTC()}
	for _, tr := range sum.Transitions {
		msg.Transitions = append(msg.Transitions, messages.AlertTransition{
			ShipmentID: tr.ShipmentID,
			OldLevel:   tr.OldLevel,
			NewLevel:   tr.NewLevel,
		})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := producer.Publish(ctx, topic, nil, b); err != nil {
		// свип уже закоммичен, терять его из-за уведомления нельзя
		slog.Error("publish alert transitions", "error", err.Error())
	}
}
