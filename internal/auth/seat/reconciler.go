package seat

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/pkg/logger"
	"github.com/charlesng35/filehub/pkg/metrics"
)

// ActiveCounter reports the ground-truth number of active sessions.
type ActiveCounter interface {
	CountAllActive(ctx context.Context) (int64, error)
}

// Reconciler keeps the seat allocator honest against the session store.
// Crashes and network partitions can leave seats checked out with no
// backing session; a reconciliation pass detects the mismatch, forces the
// pool back in line and records a snapshot for the audit trail.
type Reconciler struct {
	allocator Allocator
	sessions  ActiveCounter
	db        *gorm.DB
	log       *zap.Logger
}

// NewReconciler builds a reconciler. The db handle is used only to persist
// pool snapshots; a nil db disables snapshot recording.
func NewReconciler(allocator Allocator, sessions ActiveCounter, db *gorm.DB) *Reconciler {
	return &Reconciler{
		allocator: allocator,
		sessions:  sessions,
		db:        db,
		log:       logger.WithModule("seat.reconciler"),
	}
}

// Reconcile runs one full pass: count active sessions, compare against the
// pool, correct drift, and record a snapshot. It reports whether drift was
// found.
func (r *Reconciler) Reconcile(ctx context.Context) (bool, error) {
	active64, err := r.sessions.CountAllActive(ctx)
	if err != nil {
		return false, err
	}
	active := int(active64)

	state, err := r.allocator.State(ctx)
	if err != nil {
		return false, err
	}

	drift := state.CheckedOut != active
	if drift {
		r.log.Warn("pool drift detected, reconciling",
			zap.Int("pool_checked_out", state.CheckedOut),
			zap.Int("db_active_sessions", active),
			zap.Int("delta", state.CheckedOut-active))
		if err := r.allocator.Reconcile(ctx, active); err != nil {
			return true, err
		}
		metrics.SeatReconciliations.WithLabelValues("drift").Inc()
		r.log.Info("pool reconciliation completed")
	} else {
		metrics.SeatReconciliations.WithLabelValues("clean").Inc()
	}

	r.recordSnapshot(ctx, state, active, drift)
	return drift, nil
}

// StartupRecovery runs a reconciliation pass once during boot so seats held
// by sessions that died with a previous process are returned to the pool.
func (r *Reconciler) StartupRecovery(ctx context.Context) error {
	r.log.Info("running startup pool recovery")
	drift, err := r.Reconcile(ctx)
	if err != nil {
		return err
	}
	if drift {
		r.log.Info("startup recovery corrected pool drift")
	} else {
		r.log.Info("startup recovery: pool state is consistent")
	}
	return nil
}

func (r *Reconciler) recordSnapshot(ctx context.Context, state PoolState, active int, drift bool) {
	if r.db == nil {
		return
	}

	checkedOut := state.CheckedOut
	if drift {
		checkedOut = active
	}
	available := state.TotalSeats - active
	if available < 0 {
		available = 0
	}

	snapshot := models.PoolSnapshot{
		TotalSeats:     state.TotalSeats,
		CheckedOut:     checkedOut,
		Available:      available,
		AdminReserved:  state.AdminReserved,
		ActiveSessions: active,
		DriftDetected:  drift,
		Source:         "reconciler",
	}
	if drift {
		detail, err := json.Marshal(map[string]int{
			"pool_checked_out":   state.CheckedOut,
			"db_active_sessions": active,
			"delta":              state.CheckedOut - active,
		})
		if err == nil {
			snapshot.DriftDetail = detail
		}
	}

	if err := r.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		r.log.Error("failed to save pool snapshot", zap.Error(err))
	}
}
