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
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pharmabill/internal/backoff"
	"pharmabill/internal/billing"
	"pharmabill/internal/config"
	"pharmabill/internal/deadletter"
	"pharmabill/internal/delivery"
	"pharmabill/internal/gateway"
	"pharmabill/internal/gateway/asaas"
	"pharmabill/internal/gateway/infinitypay"
	"pharmabill/internal/httpapi"
	"pharmabill/internal/httpserver"
	"pharmabill/internal/logging"
	"pharmabill/internal/observability"
	"pharmabill/internal/scheduler"
	"pharmabill/internal/store/pg"
	"pharmabill/internal/util"
)

func main() {
	cfg := config.LoadScheduler()
	logging.Init("scheduler", cfg.LogFormat)

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
		slog.Error("scheduler db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	gwHTTP := &http.Client{Timeout: cfg.Gateways.GatewayTimeout}
	registry := gateway.NewRegistry(
		&asaas.Client{APIKey: cfg.Gateways.AsaasAPIKey, BaseURL: cfg.Gateways.AsaasBaseURL, HTTP: gwHTTP},
		&infinitypay.Client{APIKey: cfg.Gateways.InfinityPayAPIKey, BaseURL: cfg.Gateways.InfinityPayBaseURL, HTTP: gwHTTP},
	)

	svc := &billing.Service{
		Store:    st,
		Gateways: registry,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.Gateways.GatewayRPS), cfg.Gateways.GatewayBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
		IDGen: util.NewChargeID,
	}

	// the DLQ drain resubmits through an in-process engine; no queue hop
	engine := &delivery.Engine{
		Store: st,
		Exec:  delivery.NewExecutor(cfg.Retry.DeliveryTimeout),
		Policy: backoff.Policy{
			Base:       cfg.Retry.BackoffBase,
			Multiplier: cfg.Retry.BackoffMultiplier,
			Max:        cfg.Retry.BackoffMax,
		},
		MaxAttempts: cfg.Retry.MaxAttempts,
		IDGen:       util.NewDeliveryID,
		ClaimWindow: cfg.Retry.ClaimWindow,
	}
	reprocessor := &deadletter.Reprocessor{
		Store:          st,
		Engine:         engine,
		Retention:      cfg.DLQRetention,
		AlertThreshold: cfg.DLQAlertThreshold,
	}

	sched := scheduler.New(
		&scheduler.Job{
			Name:     "reconcile-charges",
			Interval: cfg.ReconcileInterval,
			Run: func(ctx context.Context) error {
				_, err := svc.SyncAllCharges(ctx)
				return err
			},
		},
		&scheduler.Job{
			Name:     "drain-dead-letters",
			Interval: cfg.DLQDrainInterval,
			Run: func(ctx context.Context) error {
				if _, err := reprocessor.Reprocess(ctx, cfg.DLQBatchSize); err != nil {
					return err
				}
				return reprocessor.Cleanup(ctx)
			},
		},
	)
	sched.Start(ctx)

	s := httpserver.New()
	(&httpserver.Jobs{Scheduler: sched}).Register(s.Mux)
	(&httpserver.Charges{Svc: svc}).Register(s.Mux)

	health := httpapi.New()
	health.Mux.HandleFunc("/healthz", httpapi.Healthz())
	health.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))
	s.Mux.PathPrefix("/").Handler(health.Mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux)),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("scheduler shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("scheduler listening",
		"port", cfg.Port,
		"reconcile_interval", cfg.ReconcileInterval,
		"dlq_drain_interval", cfg.DLQDrainInterval,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("scheduler server failed", "err", err)
		os.Exit(1)
	}

	sched.Wait()
}
