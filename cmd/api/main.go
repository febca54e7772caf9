// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/admin"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/apikey"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/auth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/connection"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/gateway"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/health"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/mcptools"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/middleware"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/oauth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/quota"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/server"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/totp"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/usage"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redis.Enabled() {
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	} else {
		logger.Info("redis not configured, using in-process limiters")
	}

	secret, insecure, err := cfg.EncryptionSecret()
	if err != nil {
		return err
	}
	if insecure {
		logger.Warn("ENCRYPTION_KEY not set, using development key for n8n credentials")
	}
	encryptor, err := core.NewEncryptor(secret)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "HS256",
		"session_ttl", jwtManager.SessionTTL(),
	)

	var redeemer auth.Redeemer = auth.NewMemoryRedeemer()
	if redis.Enabled() {
		redeemer = auth.NewRedisRedeemer(redis.Client)
	}

	authSvc := auth.NewService(st, jwtManager, totp.New(cfg.TOTP.Issuer), redeemer, logger)
	authHandler := auth.NewHandler(authSvc)

	oauthSvc := oauth.NewService(cfg.OAuth, st, authSvc, logger)
	oauthHandler := oauth.NewHandler(oauthSvc, oauth.HandlerConfig{
		FrontendURL:  cfg.OAuth.FrontendURL,
		StateTTL:     cfg.OAuth.StateTTL,
		SecureCookie: cfg.IsProduction(),
	})
	logger.Info("oauth providers enabled", "providers", oauthSvc.Providers())

	n8nClient := n8n.NewClient(cfg.N8N)

	connectionSvc := connection.NewService(st, encryptor, n8nClient, logger)
	connectionHandler := connection.NewHandler(connectionSvc)

	apikeySvc := apikey.NewService(st, logger)
	apikeyHandler := apikey.NewHandler(apikeySvc)

	quotaSvc := quota.NewService(st, quota.NewLimiter(cfg.Quota, redis.Cmdable(), logger), cfg.Quota)

	recorder := usage.NewRecorder(st, cfg.Usage, logger)

	gatewayHandler := gateway.NewHandler(cfg.Gateway, gateway.Deps{
		Keys:        apikeySvc,
		Quota:       quotaSvc,
		Connections: connectionSvc,
		Dispatcher:  mcptools.New(n8nClient, cfg.App.Version, logger),
		Usage:       recorder,
	}, logger)

	userHandler := user.NewHandler(user.NewService(st, logger))

	deps := []health.Dependency{{Name: "database", Checker: st}}
	adminCfg := admin.HandlerConfig{
		DBPing:       st.Ping,
		Users:        st,
		UsagePending: recorder.Pending,
		QuotaBackend: cfg.Quota.Backend,
	}
	if db != nil {
		adminCfg.DBStats = db.Stats
	}
	if redis.Enabled() {
		deps = append(deps, health.Dependency{Name: "redis", Checker: redis, Optional: true})
		adminCfg.RedisStats = redis.PoolStats
		adminCfg.RedisPing = redis.Ping
	}
	healthHandler := health.NewHandler(cfg.App.Version, deps...)
	adminHandler := admin.NewHandler(adminCfg)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing(cfg.Otel.ServiceName))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)
	gatewayHandler.RegisterRoutes(router)

	trusted, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return err
	}

	throttle := middleware.NewRateLimiter(redis.Cmdable(), middleware.RateLimitConfig{
		Limit: middleware.Per(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		KeyFunc:  middleware.KeyByTrustedProxy(trusted),
		FailOpen: true,
	}).Handler

	authenticator := middleware.Authenticator(jwtManager, st)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, throttle)
		oauthHandler.RegisterRoutes(r, throttle)

		connectionHandler.RegisterRoutes(r, authenticator)
		apikeyHandler.RegisterRoutes(r, authenticator)

		userHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error("usage recorder shutdown error", "error", err)
	}
	apikeySvc.Wait()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

// openStore returns the configured store. db is nil for the memory driver.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (store.Store, *core.Database, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil, nil
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected",
		"driver", db.Driver,
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	sqlStore := store.NewSQLStore(db.DB)
	if cfg.Database.AutoMigrate {
		if err := sqlStore.Migrate(ctx); err != nil {
			_ = db.Close() //nolint:errcheck // cleanup on migration failure
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database schema applied")
	}

	return sqlStore, db, nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
