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

	"pharmabill/internal/billing"
	"pharmabill/internal/config"
	"pharmabill/internal/gateway"
	"pharmabill/internal/gateway/asaas"
	"pharmabill/internal/gateway/infinitypay"
	"pharmabill/internal/httpapi"
	"pharmabill/internal/httpserver"
	"pharmabill/internal/logging"
	"pharmabill/internal/observability"
	"pharmabill/internal/store/pg"
	"pharmabill/internal/util"
)

func main() {
	cfg := config.LoadGatewayWebhook()
	logging.Init("gateway-webhook", cfg.LogFormat)

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
		slog.Error("gateway-webhook db connect failed", "err", err)
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
		IDGen:    util.NewChargeID,
	}

	s := httpserver.New()
	(&httpserver.GatewayHook{
		Store:            st,
		Syncer:           svc,
		AsaasToken:       cfg.AsaasWebhookToken,
		InfinityPayToken: cfg.InfinityPayWebhookToken,
	}).Register(s.Mux)

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
		slog.Info("gateway-webhook shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway-webhook listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("gateway-webhook server failed", "err", err)
		os.Exit(1)
	}
}
