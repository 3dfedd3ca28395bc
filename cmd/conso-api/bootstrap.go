package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cargodesk/consotrack/config"
	"github.com/cargodesk/consotrack/internal/api"
	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/broker/kafka"
	"github.com/cargodesk/consotrack/internal/cache/rediscache"
	"github.com/cargodesk/consotrack/internal/services/bulkops"
	"github.com/cargodesk/consotrack/internal/services/containers"
	"github.com/cargodesk/consotrack/internal/services/shipments"
	"github.com/cargodesk/consotrack/internal/storage/pgstore"
)

type consoAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     consoAPIOpts
	restAPI  *api.API
	shipments *shipments.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapConsoAPI() *consoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ConsoTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ConsoTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "conso-api"
	}
	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "shipment.status_changed"
	}

	cacheTTL := time.Duration(cfg.ConsoTrack.CurrentStateTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	recorder := audit.NewRecorder(st)
	shipmentsSvc := shipments.New(st, rc, recorder, cacheTTL)
	containersSvc := containers.New(st, recorder)
	bulkSvc := bulkops.New(st, recorder)
	restAPI := api.New(shipmentsSvc, containersSvc, bulkSvc, st)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &consoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: consoAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			jwtSecret:     cfg.Auth.JWTSecret,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		restAPI:   restAPI,
		shipments: shipmentsSvc,
		consumer:  consumer,
		closeDB:   st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *consoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *consoAPIApp) Run() error {
	return runConsoAPI(a.ctx, a.opts, a.restAPI, a.shipments, a.consumer)
}
