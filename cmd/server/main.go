package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shopgate/cmd/server/config"
	"shopgate/internal/checkout"
	"shopgate/internal/events"
	"shopgate/internal/gateway"
	"shopgate/internal/httpapi"
	"shopgate/internal/observability"
	"shopgate/internal/realtime"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("load .env: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	gatewayCfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	checkoutCfg, err := config.LoadCheckout()
	if err != nil {
		return err
	}
	kafkaCfg, err := config.LoadKafka()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	orderStore, cleanupOrders := buildOrderStore(ctx, os.Getenv("DATABASE_URL"), log.Printf)
	defer cleanupOrders()

	pendingStore, cleanupPending, err := buildPendingStore(ctx, checkoutCfg)
	if err != nil {
		return err
	}
	defer cleanupPending()

	hub := realtime.NewHub(5 * time.Second)
	defer hub.Close()

	publishers := []events.Publisher{events.NewHubPublisher(hub)}
	if len(kafkaCfg.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(kafkaCfg.Brokers, kafkaCfg.Topic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Printf("close kafka publisher: %v", err)
			}
		}()
		publishers = append(publishers, kafkaPublisher)
		log.Printf("settlement events published to kafka topic %q", kafkaCfg.Topic)
	}
	publisher := events.NewFanoutPublisher(publishers...)

	gatewayClient := gateway.New(gateway.Config{
		BaseURL:       gatewayCfg.BaseURL,
		APIKey:        gatewayCfg.APIKey,
		IntegrationID: gatewayCfg.IntegrationID,
		Currency:      gatewayCfg.Currency,
		Timeout:       gatewayCfg.Timeout,
	})

	// Product and user lookups are external collaborators; the in-memory
	// clients stand in until those services are wired.
	catalog := checkout.NewInMemoryProductCatalog()
	users := checkout.NewInMemoryUserDirectory()

	checkoutSvc := checkout.NewCheckoutService(catalog, users, gatewayClient, pendingStore, gatewayCfg.FrameID, log.Printf, metrics)
	settlementSvc := checkout.NewSettlementService(pendingStore, orderStore, publisher,
		checkout.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    time.Second,
		},
		checkoutCfg.SuccessRedirectURL, checkoutCfg.FailureRedirectURL, log.Printf, metrics)

	// Expired pending entries must be surfaced, never silently dropped, so
	// every pending store has to support sweeping.
	sweeper, ok := pendingStore.(checkout.Sweeper)
	if !ok {
		return fmt.Errorf("pending store %T cannot sweep expired entries", pendingStore)
	}
	reaper := checkout.NewReaper(sweeper, checkoutCfg.ReaperInterval, log.Printf, settlementSvc.HandleExpired)
	go reaper.Run(ctx)

	api := httpapi.NewServer(checkoutSvc, settlementSvc, orderStore, hub, log.Printf)
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	obsSrv := startObservabilityServer(httpCfg.MetricsAddr, metrics)

	log.Printf("server running on %s", httpCfg.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		if obsSrv != nil {
			obsCtx, obsCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer obsCancel()
			_ = obsSrv.Shutdown(obsCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func startObservabilityServer(addr string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("observability server error: %v", err)
		}
	}()

	return srv
}
