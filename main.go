package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/image-relay/internal/auth"
	"github.com/example/image-relay/internal/config"
	"github.com/example/image-relay/internal/grpchealth"
	"github.com/example/image-relay/internal/handlers"
	"github.com/example/image-relay/internal/logging"
	"github.com/example/image-relay/internal/middleware"
	"github.com/example/image-relay/internal/provider"
	"github.com/example/image-relay/internal/ratelimit"
	"github.com/example/image-relay/internal/repository"
	"github.com/example/image-relay/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.APIKey == "" {
		logger.Warn("RAPIDAPI_KEY is not set; relay endpoints will answer 500 until it is configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var ledger usecase.UsageLedger
	if cfg.DatabaseDSN != "" {
		repo := repository.NewProcessingRepository(initDatabase(ctx, cfg.DatabaseDSN, logger), logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		ledger = repo
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		if client := initRedis(redisCtx, cfg.RedisAddr, logger); client != nil {
			defer client.Close()
			store = ratelimit.NewRedisStore(client)
		}
		redisCancel()
	}

	settings := providerSettings(cfg)
	client := provider.NewClient(&http.Client{Transport: http.DefaultTransport}, settings, logger)
	uc := usecase.NewRelayUseCase(settings, client, ledger, logger)

	corsMiddleware, err := middleware.CORS(cfg.AllowedOrigins)
	if err != nil {
		logger.Fatal("invalid ALLOWED_ORIGINS", zap.Error(err))
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxMultipartMemory
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.AccessLog(logger),
		middleware.SecurityHeaders(),
		corsMiddleware,
	)

	handlers.RegisterRoutes(r, uc,
		ratelimit.Middleware(store, cfg.RateLimitRequests, cfg.RateLimitWindow, logger),
		auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience),
	)

	runCtx, stopGRPC := context.WithCancel(context.Background())
	defer stopGRPC()
	if cfg.GRPCHealthPort != "" {
		startGRPCHealth(runCtx, ":"+cfg.GRPCHealthPort, settings.HasAPIKey(), logger)
	}

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("image relay listening", zap.String("addr", addr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func providerSettings(cfg *config.Config) provider.Settings {
	return provider.Settings{
		APIKey: cfg.APIKey,
		Endpoints: map[provider.Kind]provider.Endpoint{
			provider.RemoveBackground: {Host: cfg.RemoveBG.Host, BaseURL: cfg.RemoveBG.BaseURL},
			provider.EnhanceImage:     {Host: cfg.Enhance.Host, BaseURL: cfg.Enhance.BaseURL},
		},
		DownloadTimeout: provider.DefaultDownloadTimeout,
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

// initRedis returns nil when Redis cannot be reached; rate limiting then
// stays in process.
func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("redis unavailable, using in-process rate limiting", zap.Error(err), zap.String("addr", addr))
		_ = client.Close()
		return nil
	}
	return client
}

func startGRPCHealth(ctx context.Context, addr string, apiKeyConfigured bool, logger *zap.Logger) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", addr))
	}
	srv, hs := grpchealth.NewServer(apiKeyConfigured)
	go func() {
		if err := grpchealth.Serve(ctx, srv, hs, listener, logger); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
