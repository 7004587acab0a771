package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/handlers"
	"github.com/charlesng35/filehub/internal/middleware"
	"github.com/charlesng35/filehub/internal/realtime"
)

// Deps carries everything the router mounts. DB, JWT, Sessions and Seats are
// required; the rest degrade gracefully when absent.
type Deps struct {
	DB         *gorm.DB
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionManager
	Store      iauth.SessionStore
	Limiter    *iauth.GormSessionLimiter
	Seats      seat.Allocator
	Reconciler *seat.Reconciler
	Hub        *realtime.Hub

	// RateStore backs login rate limiting; nil falls back to an
	// in-process store.
	RateStore middleware.RateStore

	// LoginRateLimit caps login attempts per client IP per minute.
	// Zero disables the limiter.
	LoginRateLimit int
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager must be provided")
	}
	if deps.Seats == nil {
		return nil, fmt.Errorf("seat allocator must be provided")
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoints (public)
	r.GET("/health", handlers.Health())
	r.GET("/ready", handlers.Ready(deps.DB, deps.Seats))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Sessions)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Store)
	poolHandler := handlers.NewPoolHandler(deps.Seats, deps.Reconciler, deps.DB, deps.Hub)
	limitHandler := handlers.NewLimitHandler(deps.Limiter)

	// Public auth routes: login is rate limited per client IP since it is
	// the only credential-guessing surface.
	public := r.Group("/api/auth")
	if deps.LoginRateLimit > 0 {
		store := deps.RateStore
		if store == nil {
			store = middleware.NewMemoryRateStore()
		}
		public.Use(middleware.RateLimit(store, deps.LoginRateLimit, time.Minute))
	}
	public.POST("/login", authHandler.Login)
	public.POST("/refresh", authHandler.Refresh)

	// Authenticated routes: every request revalidates the session, which
	// also advances its activity clock.
	authed := r.Group("/api", middleware.Auth(deps.JWT, deps.Sessions))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)

	if deps.Hub != nil {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Sessions)
		// The websocket entry point authenticates from the query string,
		// so it sits outside the header-based auth group.
		r.GET("/api/ws", realtimeHandler.Stream)
	}

	admin := authed.Group("", middleware.RequireAdmin())
	admin.GET("/sessions", sessionHandler.List)
	admin.GET("/sessions/:id", sessionHandler.Get)
	admin.POST("/sessions/:id/terminate", sessionHandler.Terminate)
	admin.POST("/sessions/terminate-non-admin", sessionHandler.TerminateAllNonAdmin)
	admin.DELETE("/users/:id/sessions", sessionHandler.TerminateUser)

	admin.GET("/pool", poolHandler.State)
	admin.PUT("/pool", poolHandler.Reconfigure)
	admin.POST("/pool/reconcile", poolHandler.Reconcile)
	admin.GET("/pool/snapshots", poolHandler.Snapshots)

	if deps.Limiter != nil {
		admin.PUT("/users/:id/session-limit", limitHandler.Set)
		admin.DELETE("/users/:id/session-limit", limitHandler.Remove)
	}

	return r, nil
}
