package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pharmabill/internal/awsutil"
	"pharmabill/internal/config"
	"pharmabill/internal/delivery"
	"pharmabill/internal/httpapi"
	"pharmabill/internal/httpserver"
	"pharmabill/internal/logging"
	"pharmabill/internal/observability"
	sqsqueue "pharmabill/internal/queue/sqs"
	"pharmabill/internal/store/pg"
	"pharmabill/internal/util"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPool.MaxConns,
		MinConns:          cfg.DBPool.MinConns,
		MaxConnLifetime:   cfg.DBPool.MaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPool.MaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPool.HealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("api sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	st := pg.New(db)
	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}

	// the API only creates records and enqueues; attempts run on the worker
	engine := &delivery.Engine{Store: st, IDGen: util.NewDeliveryID}
	intake := &delivery.Intake{Engine: engine, Queue: producer}

	s := httpserver.New()
	(&httpserver.Webhooks{Intake: intake, Deliveries: st}).Register(s.Mux)
	(&httpserver.DeadLetters{Store: st}).Register(s.Mux)

	health := httpapi.New()
	health.Mux.HandleFunc("/healthz", httpapi.Healthz())
	health.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))
	s.Mux.PathPrefix("/").Handler(health.Mux)

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}
