package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cargodesk/consotrack/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpOpts := &workerHTTPOpts{
		httpAddr:    cfg.ConsoTrack.WorkerHTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunConsoWorker(ctx, cfg, defaultWorkerFactories(), httpOpts); err != nil && err != context.Canceled {
		panic(err)
	}
}
