package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-admin-portal/internal/config"
	"go-admin-portal/internal/database"
	"go-admin-portal/internal/handler"
	"go-admin-portal/internal/middleware"
	"go-admin-portal/internal/ratelimit"
	"go-admin-portal/internal/repository"
	"go-admin-portal/internal/router"
	"go-admin-portal/internal/service"
)

type App struct {
	cfg          *config.Config
	server       *http.Server
	db           *database.DB
	audit        *service.AuditService
	tokens       *service.TokenService
	counters     *ratelimit.MemoryStore
	redis        *redis.Client
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db.SQL)
	tokenRepo := repository.NewTokenRepository(db.SQL)
	overrideRepo := repository.NewOverrideRepository(db.SQL)
	auditRepo := repository.NewAuditRepository(db.SQL)
	accessRepo := repository.NewAccessRepository(db.SQL)
	slog.Info("database ready")

	auditService := service.NewAuditService(auditRepo, service.AuditOptions{
		QueueSize:     cfg.AuditQueueSize,
		BatchSize:     cfg.AuditBatchSize,
		FlushInterval: cfg.AuditFlushInterval,
		WriteTimeout:  cfg.AuditWriteTimeout,
	})

	tokenService := service.NewTokenService(tokenRepo, userRepo, auditService, service.TokenOptions{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
		ReuseGrace: cfg.RefreshReuseGrace,
	})
	permissionService := service.NewPermissionService(userRepo, overrideRepo, accessRepo, auditService)
	csrfService := service.NewCSRFService(cfg.CSRFSecret, cfg.CSRFTTL)

	authService, err := service.NewAuthService(userRepo, tokenService, permissionService, auditService, cfg.BcryptCost)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	userService := service.NewUserService(userRepo, tokenService, permissionService, auditService, cfg.BcryptCost)

	if cfg.BootstrapAdminEmail != "" {
		created, err := userService.EnsureBootstrapAdmin(context.Background(), cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, cfg.BootstrapAdminName)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to bootstrap administrator: %w", err)
		}
		if created {
			slog.Info("bootstrap administrator created", "email", cfg.BootstrapAdminEmail)
		}
	}

	counters := ratelimit.NewMemoryStore()
	var redisClient *redis.Client
	var primary ratelimit.Store
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := ratelimit.NewRedisStore(redisClient)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable at startup; rate counters will fall back to memory", "addr", cfg.RedisAddr, "error", err)
		} else {
			slog.Info("redis connected", "addr", cfg.RedisAddr)
		}
		cancel()
		primary = redisStore
	} else {
		slog.Info("REDIS_ADDR not set; rate counters are per process")
	}

	limiter := ratelimit.NewLimiter(primary, counters, ratelimit.Options{
		Window: cfg.RateLimitWindow,
		Limits: map[ratelimit.Class]int{
			ratelimit.ClassAuth: cfg.AuthRateLimit,
			ratelimit.ClassAPI:  cfg.APIRateLimit,
		},
		StoreTimeout: cfg.RateLimitStoreTimeout,
	})

	cookie := middleware.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}

	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthDeps{
		Tokens:       tokenService,
		Sessions:     authService,
		Users:        userRepo,
		CSRF:         csrfService,
		Limiter:      limiter,
		Permissions:  permissionService,
		Audit:        auditService,
		Cookie:       cookie,
		SessionCheck: cfg.SessionCheck,
	})

	appRouter := router.New(cfg, router.Guards{
		Auth:      authMiddleware,
		RateLimit: middleware.NewRateLimitMiddleware(limiter, auditService),
	}, router.Handlers{
		Auth:  handler.NewAuthHandler(authService, csrfService, cookie),
		User:  handler.NewUserHandler(userService, permissionService),
		Audit: handler.NewAuditHandler(auditService),
		Page:  handler.NewPageHandler(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		cfg:      cfg,
		server:   server,
		db:       db,
		audit:    auditService,
		tokens:   tokenService,
		counters: counters,
		redis:    redisClient,
	}, nil
}

func (a *App) Run() error {
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	a.cleanupFuncs = append(a.cleanupFuncs, backgroundCancel)

	a.counters.StartEviction(backgroundCtx, a.cfg.RateLimitWindow)
	go a.housekeeping(backgroundCtx)

	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	// Handlers are done; flush queued routine entries before the pool closes.
	if err := a.audit.Close(ctx); err != nil {
		slog.Error("audit queue not fully drained", "error", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

// housekeeping purges long-expired refresh credentials and audit entries
// older than the retention period.
func (a *App) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purge(ctx)
		}
	}
}

func (a *App) purge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	purged, err := a.tokens.PurgeExpired(ctx, a.cfg.RefreshRetention)
	if err != nil {
		slog.Error("refresh credential purge failed", "error", err)
	} else if purged > 0 {
		slog.Info("refresh credentials purged", "count", purged)
	}

	removed, err := a.audit.PurgeBefore(ctx, time.Now().Add(-a.cfg.AuditRetention))
	if err != nil {
		slog.Error("audit retention purge failed", "error", err)
	} else if removed > 0 {
		slog.Info("audit entries purged", "count", removed)
	}
}
