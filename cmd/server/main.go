package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"verigate/internal/audit"
	"verigate/internal/jwtauth"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	"verigate/internal/platform/logger"
	"verigate/internal/platform/metrics"
	"verigate/internal/platform/postgres"
	platformredis "verigate/internal/platform/redis"
	referralhandler "verigate/internal/referral/handler"
	referralservice "verigate/internal/referral/service"
	referralstore "verigate/internal/referral/store"
	"verigate/internal/verification/cache"
	verificationhandler "verigate/internal/verification/handler"
	verificationservice "verigate/internal/verification/service"
	"verigate/internal/verification/store/account"
	"verigate/internal/verification/store/session"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis cache enabled")
	}

	m := metrics.New()

	auditStore, closeAudit, err := newAuditStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	auditor := audit.NewPublisher(log, 256)
	auditWorker := audit.NewWorker(auditStore, auditor.Inbox(), log)

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, "verigate", "verigate-api")

	sessions := session.NewPostgres(db)
	accounts := account.NewPostgres(db)
	verificationSvc := verificationservice.New(sessions, accounts, m, log,
		verificationservice.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL)),
		verificationservice.WithAuditor(auditor),
	)

	referrals := referralstore.NewPostgres(db)
	referralSvc := referralservice.New(referrals, m, log,
		referralservice.WithAuditor(auditor),
	)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	verificationhandler.New(verificationSvc, log, m, jwtService, cfg.WebhookSecret).Register(router)
	referralhandler.New(referralSvc, log, m, jwtService).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.MetricsAddr, metricsMux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting verigate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return auditWorker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newAuditStore selects the audit sink: Kafka when brokers are configured,
// otherwise an in-memory store that keeps local development dependency-free.
func newAuditStore(cfg config.Server, log *slog.Logger) (audit.Store, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("audit sink: in-memory")
		return audit.NewInMemoryStore(), func() {}, nil
	}
	store, err := audit.NewKafkaStore(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit sink: kafka", "topic", cfg.Kafka.Topic)
	return store, store.Close, nil
}
