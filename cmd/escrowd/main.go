package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/latch-escrow/internal/audit"
	"github.com/xela07ax/latch-escrow/internal/console/handler"
	"github.com/xela07ax/latch-escrow/internal/console/server"
	"github.com/xela07ax/latch-escrow/internal/console/service"
	"github.com/xela07ax/latch-escrow/internal/engine"
	"github.com/xela07ax/latch-escrow/internal/infra"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"github.com/xela07ax/latch-escrow/internal/ledger"
	"github.com/xela07ax/latch-escrow/internal/policy"
	"github.com/xela07ax/latch-escrow/internal/repository/postgres"
	"github.com/xela07ax/latch-escrow/internal/repository/rediskv"
	"github.com/xela07ax/latch-escrow/internal/risk"
	"github.com/xela07ax/latch-escrow/internal/store"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом: SIGTERM отменяет его
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	reliability := func(name string) *engine.ReliabilityWrapper {
		rc := engine.DefaultReliabilityConfig(name)
		rc.Attempts = cfg.Engine.RetryAttempts
		rc.CallTimeout = cfg.Engine.CallTimeout
		rc.BreakerFailures = cfg.Engine.CBFailures
		rc.BreakerOpenAfter = cfg.Engine.CBTimeout
		return engine.NewReliabilityWrapper(rc, metrics)
	}

	// 2. Postgres: архив журнала и пользователи (опционально)
	var (
		pool     *pgxpool.Pool
		archiver *audit.Archiver
		archive  *service.AuditService
		users    *postgres.UserRepo
	)
	ledgerOpts := []ledger.Option{}
	if cfg.Database.URL != "" {
		dbCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
		pool, err = postgres.Open(dbCtx, cfg.Database)
		if err == nil {
			err = postgres.Migrate(dbCtx, pool)
		}
		cancel()
		if err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		defer pool.Close()

		repo := postgres.NewActivityArchive(pool)
		archiver = audit.NewArchiver(repo, logger, audit.Options{
			BufferSize:    cfg.Engine.AuditBufferSize,
			BatchSize:     cfg.Engine.AuditBatchSize,
			FlushInterval: cfg.Engine.AuditFlushInterval,
			BufferFill:    metrics.AuditBufferFill,
			Guard:         reliability("postgres-archive"),
		})
		archiver.Start()
		ledgerOpts = append(ledgerOpts, ledger.WithSink(archiver))
		archive = service.NewAuditService(repo)
		users = postgres.NewUserRepo(pool)
	}

	// 3. Ядро: хранилище, журнал, политика, контроллер
	threshold, err := decimal.NewFromString(cfg.Engine.HighValueThreshold)
	if err != nil {
		logger.Warn("invalid high_value_threshold, risk watch disabled", zap.String("value", cfg.Engine.HighValueThreshold))
		threshold = decimal.Zero
	}
	ctrl := engine.NewController(
		store.NewMemoryStore(),
		ledger.New(ledgerOpts...),
		policy.NewEngine(),
		logger,
		engine.Options{
			Sinks:   []engine.EventSink{risk.NewAnalyzer(threshold, reg, logger)},
			Metrics: metrics,
		},
	)

	// 4. Redis: снимок состояния и события (опционально)
	var (
		rdb       *redis.Client
		syncer    *engine.StateSyncer
		publisher *engine.Publisher
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		syncer = engine.NewStateSyncer(rediskv.NewStateRepo(rdb), reliability("redis-state"), logger)
		st, err := syncer.Load(appCtx)
		switch {
		case err != nil:
			logger.Warn("state not loaded, starting empty", zap.Error(err))
		default:
			if err := ctrl.Restore(st); err != nil {
				logger.Warn("state restore failed, starting empty", zap.Error(err))
				ctrl.AdminReset(appCtx)
			}
		}
		syncer.Start()
		ctrl.SetStateSink(syncer)

		publisher = engine.NewPublisher(engine.NewRedisBus(rdb), infra.RedisChanVaultEvents,
			reliability("redis-pubsub"), metrics, logger, cfg.Engine.EventBufferSize)
		publisher.Start()
		ctrl.AddSink(publisher)
	}

	// 5. Аутентификация (опционально)
	var validator auth.TokenValidator
	var authHandler *handler.AuthHandler
	if cfg.Auth.Enabled {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("auth public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pub)

		if users != nil && len(cfg.Auth.PrivateKey) > 0 {
			priv, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				logger.Fatal("auth private key", zap.Error(err))
			}
			authHandler = handler.NewAuthHandler(service.NewAuthService(users, priv, cfg.Auth.TokenTTL), logger)
		}
	}

	// 6. HTTP API
	var limiter *rate.Limiter
	if cfg.Engine.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Engine.RateLimit), max(cfg.Engine.RateBurst, 1))
	}
	api := server.NewConsoleServer(logger, validator, limiter, server.Handlers{
		Auth:      authHandler,
		Vaults:    handler.NewVaultHandler(ctrl, logger),
		Activity:  handler.NewActivityHandler(ctrl, archive),
		Dashboard: handler.NewDashboardHandler(ctrl),
		Roles:     handler.NewRoleHandler(ctrl),
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. gRPC + health
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator)))
	engine.RegisterVaultService(grpcSrv, engine.NewGRPCVaultServer(ctrl))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	hs.SetServingStatus(engine.VaultServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("gRPC server started", zap.String("addr", cfg.GRPC.Addr()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// Экспортируем метрики для Prometheus
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("escrowd started", zap.String("addr", srv.Addr), zap.Bool("auth", cfg.Auth.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("escrowd stopping...")
	hs.Shutdown()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	metricsSrv.Shutdown(shutdownCtx)

	// Новых операций больше нет: дописываем фоновые очереди
	if publisher != nil {
		publisher.Stop()
	}
	if syncer != nil {
		syncer.Stop()
	}
	if archiver != nil {
		archiver.Stop()
	}
	logger.Info("escrowd exited properly")
}
