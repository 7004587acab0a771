package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/filehub/internal/api"
	"github.com/charlesng35/filehub/internal/app"
	"github.com/charlesng35/filehub/internal/app/maintenance"
	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/cache"
	"github.com/charlesng35/filehub/internal/database"
	"github.com/charlesng35/filehub/internal/middleware"
	"github.com/charlesng35/filehub/internal/realtime"
	"github.com/charlesng35/filehub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisClient
	Store     *iauth.GormSessionStore
	Manager   *iauth.SessionManager
	Seats     seat.Allocator
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, caches, seat pool, session
// manager and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	var cacheStore cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			cacheStore = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig(), cacheStore)
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	// The seat pool lives in Redis when available so multiple instances
	// share one allocation set; otherwise it is process-local.
	if stack.Redis != nil {
		stack.Seats, err = seat.NewRedisAllocator(ctx, stack.Redis, cfg.Seats.Total, cfg.Seats.AdminReserved)
		if err != nil {
			return nil, fmt.Errorf("initialise seat pool: %w", err)
		}
	} else {
		stack.Seats = seat.NewMemoryAllocator(cfg.Seats.Total, cfg.Seats.AdminReserved)
	}

	stack.Store = iauth.NewGormSessionStore(stack.DB, cfg.StoreConfig())
	limiter := iauth.NewGormSessionLimiter(stack.DB, cfg.LimiterSettings())

	hub := realtime.NewHub(stack.Store)

	stack.Manager, err = iauth.NewSessionManager(iauth.SessionManagerDeps{
		Users:    iauth.NewGormUserRepository(stack.DB),
		Sessions: stack.Store,
		Limiter:  limiter,
		Seats:    stack.Seats,
		Tokens:   jwtSvc,
		Cache:    cacheStore,
		Events:   realtime.NewSessionBroadcaster(hub),
	}, cfg.ManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}

	reconciler := seat.NewReconciler(stack.Seats, stack.Store, stack.DB)
	if err := reconciler.StartupRecovery(ctx); err != nil {
		return nil, fmt.Errorf("seat pool startup recovery: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Manager, stack.Store, reconciler,
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
		maintenance.WithReconcileSchedule(cfg.Maintenance.ReconcileSchedule),
		maintenance.WithWSSchedule(cfg.Maintenance.WSSchedule),
		maintenance.WithSnapshotSchedule(cfg.Maintenance.SnapshotSchedule),
		maintenance.WithSnapshotRetentionDays(cfg.Maintenance.SnapshotRetentionDays),
		maintenance.WithStaleWSCutoff(cfg.Maintenance.StaleWSCutoff),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewCacheRateStore(cacheStore)

	stack.Router, err = api.NewRouter(api.Deps{
		DB:             stack.DB,
		JWT:            jwtSvc,
		Sessions:       stack.Manager,
		Store:          stack.Store,
		Limiter:        limiter,
		Seats:          stack.Seats,
		Reconciler:     reconciler,
		Hub:            hub,
		RateStore:      stack.RateStore,
		LoginRateLimit: cfg.Sessions.LoginRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
