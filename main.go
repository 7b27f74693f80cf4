package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/config"
	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/eventing/eventbus"
	eventingrepo "marketplace-settlement/internal/eventing/infrastructure/postgres"
	"marketplace-settlement/internal/eventing/redisstream"
	"marketplace-settlement/internal/logger"
	"marketplace-settlement/internal/notify"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/payout"
	"marketplace-settlement/internal/runlock"
	settlementapp "marketplace-settlement/internal/settlement/application"
	settlementrepo "marketplace-settlement/internal/settlement/infrastructure/postgres"
	settlementinterfaces "marketplace-settlement/internal/settlement/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/rueidis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("settlement service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	metrics.Init(db, log)

	auditRepo := audit.NewRepository(db)

	var redisClient rueidis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{cfg.RedisAddr}})
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(settlementapp.PayoutBatchFinalized{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	batchEvents := eventbus.EventTypeOf[settlementapp.PayoutBatchFinalized]()
	eventLog := settlementinterfaces.NewLoggingPublisher(log)
	eventing.Subscribe(baseBus, batchEvents, "settlement.log", func(ctx context.Context, event any) error {
		evt, ok := event.(settlementapp.PayoutBatchFinalized)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return eventLog.PublishBatchFinalized(ctx, evt)
	}, processedStore)

	var locker settlementapp.RunLocker = runlock.NewLocalLocker()
	if redisClient != nil {
		relay, err := redisstream.NewRelay(redisClient, cfg.EventStream, cfg.EventStreamMaxLen, log)
		if err != nil {
			return err
		}
		eventing.Subscribe(baseBus, batchEvents, "settlement.redis_stream", relay.Handle, processedStore)

		redisLocker, err := runlock.NewRedisLocker(redisClient, "lock:", cfg.RunLockTTL)
		if err != nil {
			return err
		}
		locker = redisLocker
	}
	go dispatcher.Run(ctx, cfg.OutboxPollInterval, cfg.OutboxBatchSize, log)

	payoutClient, err := payout.NewClient(cfg.Payout.BaseURL, cfg.Payout.KeyID, cfg.Payout.KeySecret, cfg.Payout.Timeout)
	if err != nil {
		return err
	}
	payoutDispatcher, err := payout.NewDispatcher(payoutClient, payoutSettings(cfg.Payout))
	if err != nil {
		return err
	}

	opts := []settlementapp.Option{
		settlementapp.WithLocation(loc),
		settlementapp.WithRunLocker(locker),
		settlementapp.WithPublisher(settlementinterfaces.NewOutboxPublisher(publisher)),
		settlementapp.WithLogger(log),
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, settlementapp.WithNotifier(notify.NewWebhookNotifier(cfg.WebhookURL)))
	}
	service, err := settlementapp.NewSettlementService(
		settlementrepo.NewOrderLedgerRepository(db),
		settlementrepo.NewBatchRepository(db),
		settlementrepo.NewTransactionRepository(db),
		settlementrepo.NewSellerDirectory(db),
		payoutDispatcher,
		opts...,
	)
	if err != nil {
		return err
	}

	settlementHandler, err := settlementinterfaces.NewSettlementHandler(service, auditRepo)
	if err != nil {
		return err
	}
	payoutHandler, err := settlementinterfaces.NewPayoutHandler(service, auditRepo)
	if err != nil {
		return err
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/settlements/", settlementHandler)
	mux.Handle("/api/v1/payouts", payoutHandler)
	mux.Handle("/api/v1/payouts/", payoutHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "timezone", loc.String())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func payoutSettings(base config.Payout) payout.SettingsFunc {
	return func(sellerID string) payout.Settings {
		p := base.ForSeller(sellerID)
		return payout.Settings{
			AccountNumber:     p.AccountNumber,
			Currency:          p.Currency,
			Mode:              p.Mode,
			Purpose:           p.Purpose,
			NarrationPrefix:   p.NarrationPrefix,
			QueueIfLowBalance: p.QueueIfLowBalance,
		}
	}
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
