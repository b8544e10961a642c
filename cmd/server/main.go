package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/task-insights/internal/api"
	"github.com/ricirt/task-insights/internal/broker"
	"github.com/ricirt/task-insights/internal/config"
	"github.com/ricirt/task-insights/internal/db"
	"github.com/ricirt/task-insights/internal/metrics"
	"github.com/ricirt/task-insights/internal/ratelimiter"
	"github.com/ricirt/task-insights/internal/redelivery"
	"github.com/ricirt/task-insights/internal/repository"
	"github.com/ricirt/task-insights/internal/service"
	"github.com/ricirt/task-insights/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	// ---- database ----
	// Each update opens its own connection; this only reports reachability.
	if conn, err := db.Connect(ctx, cfg.Store); err != nil {
		logger.Warn("database not reachable at startup", zap.String("host", cfg.Store.Host), zap.Error(err))
	} else {
		_ = conn.Close(ctx)
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgTaskRepository(cfg.Store)
	svc := service.NewAnalysisService(repo, logger)

	policy, closeCounter := newRedeliveryPolicy(ctx, cfg, logger)
	defer closeCounter()

	var dlq string
	if policy.Enabled() {
		dlq = policy.Queue()
	}
	mgr := broker.NewManager(cfg.Broker, broker.NewAMQPDialer(logger), logger, dlq)
	mgr.OnAttempt = m.OnConnectAttempt

	status := worker.NewStatus()
	consumer := worker.NewConsumer(
		cfg.Broker.Queue, mgr, svc, policy,
		ratelimiter.New(cfg.Worker.NackRate, cfg.Worker.NackBurst),
		status, logger, m.WorkerHooks(),
	)

	// ---- consumer ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go func() {
		// A failed start leaves the host serving health with consumer_running=false.
		if err := consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer exited", zap.Error(err))
		}
	}()

	sampler := worker.NewQueueSampler(consumer, cfg.Worker.QueueSampleSchedule, m.OnQueueSample, logger)
	go func() {
		if err := sampler.Run(workerCtx); err != nil {
			logger.Error("queue sampler not started", zap.Error(err))
		}
	}()

	// ---- HTTP server ----
	router := api.NewRouter(status, sampler, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop taking deliveries; the in-flight message still settles.
	consumer.Stop()
	cancelWorkers()

	// 3. Wait for the consumer to close its channel and connection.
	select {
	case <-consumer.Done():
	case <-shutdownCtx.Done():
		logger.Warn("consumer did not stop before the shutdown timeout")
	}

	logger.Info("server stopped cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newRedeliveryPolicy picks the failure counter: Redis when REDIS_ADDR is
// set and reachable, process memory otherwise.
func newRedeliveryPolicy(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redelivery.Policy, func()) {
	w := cfg.Worker
	if w.RedeliveryLimit <= 0 {
		logger.Info("failed messages are requeued without limit")
		return redelivery.NewPolicy(0, nil, cfg.Broker.Queue, ""), func() {}
	}

	var (
		counter redelivery.Counter = redelivery.NewMemoryCounter(w.RedeliveryTTL)
		closeFn                    = func() {}
	)
	if w.RedisAddr != "" {
		rc := redelivery.NewRedisCounter(w.RedisAddr, w.RedeliveryTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable; counting redeliveries in memory", zap.Error(err))
			_ = rc.Close()
		} else {
			counter = rc
			closeFn = func() { _ = rc.Close() }
		}
	}

	logger.Info("bounded redelivery enabled",
		zap.Int("limit", w.RedeliveryLimit),
		zap.String("dead_letter_queue", w.DeadLetterQueue),
	)
	return redelivery.NewPolicy(w.RedeliveryLimit, counter, cfg.Broker.Queue, w.DeadLetterQueue), closeFn
}
