package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-auth/internal/infra/kafka"
	"github.com/arklim/social-platform-auth/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-auth/internal/infra/redis"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/infra/telemetry"
	"github.com/arklim/social-platform-auth/internal/repository/memory"
	postgresrepo "github.com/arklim/social-platform-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-auth/internal/repository/redis"
	transportgrpc "github.com/arklim/social-platform-auth/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/social-platform-auth/internal/transport/grpc/interceptors"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/transport/http/routes"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application owns every long-lived resource of the auth service.
type Application struct {
	cfg         *config.AppConfig
	engine      *gin.Engine
	logger      *zap.Logger
	tracer      *telemetry.TracerProvider
	pool        *pgxpool.Pool
	redis       *redisinfra.Client
	producer    *kafkainfra.Producer
	rateStore   *memory.RateLimitStore
	revocations *kafkainfra.RevocationListener
	grpcServer  *transportgrpc.Server
	grpcAddr    string
}

// New wires configuration into a runnable application. Resources opened
// before a failure are released before returning.
func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	if cfg.Telemetry.TracingEnabled {
		a.tracer, err = telemetry.NewTracerProvider(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	users, err := a.userRepository(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	denylist, err := a.denylist()
	if err != nil {
		return nil, err
	}

	rateLimitStore := a.rateLimitStore()
	events := a.eventPublisher()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	policyCfg := security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MaxLength:           cfg.Password.MaxLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	}
	if err := policyCfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:   []byte(cfg.JWT.Secret),
		TTL:      cfg.JWT.AccessTokenTTL,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, denylist)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authMetrics, err := telemetry.NewAuthMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	authService, err := usecase.NewAuthService(usecase.AuthDependencies{
		Users:            users,
		Hasher:           hasher,
		Tokens:           tokens,
		Validator:        security.NewCredentialValidator(security.NewPasswordPolicy(policyCfg)),
		Events:           events,
		Logger:           log,
		Metrics:          authMetrics,
		OperationTimeout: cfg.Auth.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	attemptLimiter := usecase.NewRateLimiter(rateLimitStore, log)
	rateLimiter := middleware.NewRateLimiter(attemptLimiter, log).WithMetrics(httpMetrics)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    registry,
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
		if err != nil {
			return nil, fmt.Errorf("init grpc metrics: %w", err)
		}

		var tracing *grpcinterceptors.Tracing
		if cfg.Telemetry.TracingEnabled {
			tracing = grpcinterceptors.NewTracing(grpcinterceptors.TracingOptions{
				TracerProvider: a.tracer.TracerProvider(),
				Propagators:    otel.GetTextMapPropagator(),
				SkipMethods:    []string{"/grpc.health.v1.Health/Check", "/grpc.health.v1.Health/Watch"},
			})
		}

		a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Auth:    authService,
			Logger:  log,
			Metrics: grpcMetrics,
			Tracing: tracing,
		})
		if err != nil {
			return nil, fmt.Errorf("init grpc server: %w", err)
		}
		a.grpcAddr = fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	}

	return a, nil
}

func (a *Application) userRepository(ctx context.Context) (port.UserRepository, error) {
	if a.cfg.Storage.Driver == "memory" {
		a.logger.Warn("using in-memory user storage, accounts are lost on restart")
		return memory.NewUserRepository(), nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if a.cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pool, a.logger); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	return postgresrepo.NewRepositories(pool).Users, nil
}

// denylist prefers Redis so revocations are shared. Without Redis each
// instance keeps its own list, kept in sync through Kafka when brokers exist.
func (a *Application) denylist() (port.JTIDenylist, error) {
	if a.redis != nil {
		return redisrepo.NewRevocationRepository(a.redis.Client(), a.redis.Key("revoked-jti")), nil
	}

	local := security.NewJTIDenylist(security.JTIDenylistOptions{MaxEntries: a.cfg.JWT.DenylistMaxEntries})
	if !a.cfg.Kafka.Enabled() {
		return local, nil
	}

	consumer := kafkainfra.NewRevocationConsumer(local, a.logger, kafkainfra.RevocationConsumerOptions{})
	listener, err := kafkainfra.NewRevocationListener(a.cfg.Kafka, instanceGroup(a.cfg.Kafka.ConsumerGroup), consumer, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init revocation listener: %w", err)
	}
	a.revocations = listener
	return local, nil
}

// instanceGroup suffixes the group with the host name so every replica
// receives every revocation.
func instanceGroup(group string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return group + "-" + host
}

func (a *Application) rateLimitStore() port.RateLimitStore {
	if a.cfg.RateLimit.Store == "redis" {
		if a.redis != nil {
			return redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
				KeyPrefix: a.redis.Key("rate-limit"),
			})
		}
		a.logger.Warn("rate_limit.store=redis but redis is disabled, using in-memory store")
	}

	store := memory.NewRateLimitStore()
	store.Start(a.cfg.RateLimit.CleanupInterval)
	a.rateStore = store
	return store
}

func (a *Application) eventPublisher() port.EventPublisher {
	if !a.cfg.Kafka.Enabled() {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// Run serves HTTP and gRPC until ctx is cancelled or a server fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	errCh := make(chan error, 3)

	if a.revocations != nil {
		go func() {
			if err := a.revocations.Run(ctx); err != nil {
				errCh <- fmt.Errorf("run revocation listener: %w", err)
			}
		}()
	}

	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("rate_limit_store", a.cfg.RateLimit.Store),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case runErr = <-errCh:
		a.logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.grpcServer != nil {
		a.grpcServer.Health.SetServingStatus(transportgrpc.TokenServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		a.grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown server: %w", err))
	}

	return runErr
}

// release closes resources in reverse dependency order. Every field may be nil.
func (a *Application) release(ctx context.Context) {
	if a.revocations != nil {
		if err := a.revocations.Close(); err != nil {
			a.logger.Warn("close revocation listener", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.rateStore != nil {
		_ = a.rateStore.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Migrate applies pending database migrations and exits.
func Migrate(ctx context.Context, cfg *config.AppConfig) error {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrations require storage.driver=postgres, got %q", cfg.Storage.Driver)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pool.Close()

	return database.Migrate(ctx, pool, log)
}
