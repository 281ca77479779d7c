package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mlnyx/algo-dental/pkg/clinic"
	"github.com/mlnyx/algo-dental/pkg/common/config"
	"github.com/mlnyx/algo-dental/pkg/common/database"
	"github.com/mlnyx/algo-dental/pkg/common/kafka"
	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/gateway/middleware"
	"github.com/mlnyx/algo-dental/pkg/observability/metrics"
)

const serviceName = "clinic-service"

func main() {
	logger.Init(serviceName)
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	repo := clinic.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate clinic tables")
	}

	seed, err := clinic.LoadSeed(cfg.SeedFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load seed data")
	}
	if err := clinic.NewSeeder(repo).Run(ctx, cfg.ChairCount, seed); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed clinic")
	}

	var locker clinic.Locker = clinic.NewLocalLocker(cfg.ChairLockWait)
	if cfg.RedisEnabled {
		rdb, err := database.NewRedis(ctx, cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		locker = clinic.NewRedisLocker(rdb, cfg.ChairLockTTL, cfg.ChairLockWait)
	}

	var publisher clinic.Publisher
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, serviceName)
		defer producer.Close()
		publisher = producer
	}

	chairs := clinic.NewChairService(repo, locker, publisher, clinic.ChairOptions{
		EstimatedMinutes: cfg.ChairEstimatedMinutes,
		CompletionLabel:  cfg.TreatmentCompleteLabel,
	})
	queue := clinic.NewQueueService(repo, publisher)
	stats := clinic.NewStatsService(repo, cfg.ChairCount)
	history := clinic.NewHistoryService(repo, clinic.HistoryOptions{
		DefaultLimit: cfg.HistoryDefaultLimit,
		MaxLimit:     cfg.HistoryMaxLimit,
	})
	handler := clinic.NewHandler(chairs, queue, stats, history)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ALGO - Dental Operating System API v2.0"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingPostgres(r.Context(), db); err != nil {
			logger.Log.WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	handler.Register(api)
	// Preflight requests need a matching route for the CORS middleware to run.
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Clinic service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start clinic service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down clinic service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Clinic service forced to shutdown")
	}
	logger.Log.Info("Clinic service stopped")
}
