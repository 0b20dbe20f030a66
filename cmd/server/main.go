package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/CampusGigService/internal/api"
	"github.com/honeynil/CampusGigService/internal/config"
	"github.com/honeynil/CampusGigService/internal/handler"
	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/realtime"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/observability"
	"github.com/honeynil/CampusGigService/internal/repository"
	"github.com/honeynil/CampusGigService/internal/repository/memory"
	"github.com/honeynil/CampusGigService/internal/repository/postgres"
	service "github.com/honeynil/CampusGigService/internal/services"
	"github.com/honeynil/CampusGigService/internal/sweeper"
	"github.com/honeynil/CampusGigService/migrations"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "campus-gig-service"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs, metrics, traces
	shutdownTracing, err := observability.Setup(ctx, serviceName, cfg.LogLevel, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	hub := realtime.NewHub()

	var publisher service.EventPublisher = service.NopPublisher{}
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, serviceName, redisClient, hub)
		defer consumer.Close()
		go consumer.Consume(ctx)
	} else {
		slog.Info("kafka disabled, change events are not published")
	}

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := service.NewAuthService(store, redisClient, publisher, jwt, cfg.AdminEmails)
	gigSvc := service.NewGigService(store, redisClient, publisher)
	walletSvc := service.NewWalletService(store, redisClient, publisher)
	adminSvc := service.NewAdminService(store, redisClient, publisher)

	sw := sweeper.New(gigSvc, redisClient, cfg.ExpirySchedule)
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop(context.Background())

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(time.Minute, ctx.Done())

	router := api.SetupRouter(api.RouterConfig{
		Handler:      handler.NewHandler(authSvc, gigSvc, walletSvc, adminSvc),
		Redis:        redisClient,
		JWT:          jwt,
		Limiter:      limiter,
		Realtime:     hub,
		ServeMetrics: cfg.MetricsAddr == "",
	})

	servers := []*http.Server{{Addr: cfg.HTTPAddr, Handler: router}}
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			slog.Info("starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-errCh:
		slog.Error("server stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			slog.Error("server shutdown failed", "addr", srv.Addr, "error", serr)
		}
	}
	slog.Info("server stopped")
	return err
}

func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := migrations.Up(db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}
