package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/pkg/logger"
)

const (
	defaultSnapshotRetentionDays = 30
	defaultStaleWSCutoff         = 5 * time.Minute

	defaultSessionSpec   = "*/5 * * * *"
	defaultReconcileSpec = "@every 1m"
	defaultWSSpec        = "@every 2m"
	defaultSnapshotSpec  = "@daily"
)

// Cleaner coordinates background maintenance: sweeping expired and idle
// sessions, reconciling the seat pool against the database, disconnecting
// stale websocket markers, and pruning old pool snapshots.
type Cleaner struct {
	db         *gorm.DB
	sessions   *iauth.SessionManager
	store      iauth.SessionStore
	reconciler *seat.Reconciler
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	enabled    bool
	retention  int
	wsCutoff   time.Duration

	sessionSchedule   string
	reconcileSchedule string
	wsSchedule        string
	snapshotSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSnapshotRetentionDays adjusts how long pool snapshots are kept.
func WithSnapshotRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithStaleWSCutoff adjusts how long a websocket may sit without activity
// before its connected flag is cleared.
func WithStaleWSCutoff(cutoff time.Duration) Option {
	return func(cleaner *Cleaner) {
		if cutoff > 0 {
			cleaner.wsCutoff = cutoff
		}
	}
}

// WithSessionSchedule overrides the cron specification for session sweeps.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithReconcileSchedule overrides the cron specification for pool reconciliation.
func WithReconcileSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.reconcileSchedule = spec
		}
	}
}

// WithWSSchedule overrides the cron specification for the stale websocket sweep.
func WithWSSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.wsSchedule = spec
		}
	}
}

// WithSnapshotSchedule overrides the cron specification for snapshot pruning.
func WithSnapshotSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.snapshotSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding job being skipped.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionManager, store iauth.SessionStore, reconciler *seat.Reconciler, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                db,
		sessions:          sessions,
		store:             store,
		reconciler:        reconciler,
		now:               time.Now,
		retention:         defaultSnapshotRetentionDays,
		wsCutoff:          defaultStaleWSCutoff,
		sessionSchedule:   defaultSessionSpec,
		reconcileSchedule: defaultReconcileSpec,
		wsSchedule:        defaultWSSpec,
		snapshotSchedule:  defaultSnapshotSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.reconciler != nil || cleaner.store != nil || cleaner.db != nil

	return cleaner
}

// Start registers jobs with the cron scheduler and launches it if at least
// one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.reconciler != nil {
		if _, err := c.cron.AddFunc(c.reconcileSchedule, func() {
			if drift, err := c.reconciler.Reconcile(context.Background()); err != nil {
				c.log.Warn("seat reconciliation failed", zap.Error(err))
			} else if drift {
				c.log.Info("seat pool drift corrected")
			}
		}); err != nil {
			return err
		}
	}

	if c.store != nil {
		if _, err := c.cron.AddFunc(c.wsSchedule, func() {
			if _, err := c.SweepStaleWS(context.Background()); err != nil {
				c.log.Warn("stale websocket sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.snapshotSchedule, func() {
			if _, err := PruneSnapshots(context.Background(), c.db, c.now().AddDate(0, 0, -c.retention)); err != nil {
				c.log.Warn("snapshot pruning failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially.
// Used during graceful shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.reconciler != nil {
		if _, err := c.reconciler.Reconcile(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.store != nil {
		if _, err := c.SweepStaleWS(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := PruneSnapshots(ctx, c.db, c.now().AddDate(0, 0, -c.retention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// SweepStaleWS clears the connected flag and presence of sessions whose
// websocket went silent. The sessions themselves stay active; only realtime
// state is reset.
func (c *Cleaner) SweepStaleWS(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	cutoff := c.now().Add(-c.wsCutoff)
	stale, err := c.store.FindStaleWSConnections(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range stale {
		session := &stale[i]
		if err := c.store.SetWSConnected(ctx, session.ID, false); err != nil {
			c.log.Warn("failed to clear websocket flag",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if err := c.store.SetPresenceStatus(ctx, session.ID, models.PresenceOffline); err != nil {
			c.log.Warn("failed to reset presence",
				zap.String("session_id", session.ID), zap.Error(err))
		}
		swept++
	}

	if swept > 0 {
		c.log.Info("cleared stale websocket connections", zap.Int("count", swept))
	}
	return swept, nil
}

// PruneSnapshots removes pool snapshots recorded before the cutoff.
func PruneSnapshots(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune snapshots: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.PoolSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune snapshots: %w", result.Error)
	}
	return result.RowsAffected, nil
}
