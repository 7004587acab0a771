package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/internal/realtime"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

// PoolHandler exposes seat pool inspection, reconfiguration and reconciliation.
type PoolHandler struct {
	allocator  seat.Allocator
	reconciler *seat.Reconciler
	db         *gorm.DB
	hub        *realtime.Hub
}

// NewPoolHandler constructs a PoolHandler. The hub is optional; when present,
// pool changes are broadcast on the pool stream.
func NewPoolHandler(allocator seat.Allocator, reconciler *seat.Reconciler, db *gorm.DB, hub *realtime.Hub) *PoolHandler {
	return &PoolHandler{allocator: allocator, reconciler: reconciler, db: db, hub: hub}
}

type reconfigureRequest struct {
	TotalSeats    *int `json:"total_seats" validate:"omitempty,gte=1"`
	AdminReserved *int `json:"admin_reserved" validate:"omitempty,gte=0"`
}

// State returns the current pool occupancy.
func (h *PoolHandler) State(c *gin.Context) {
	state, err := h.allocator.State(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Reconfigure changes the pool capacity and admin carve-out. Shrinking below
// current occupancy is allowed; seat holders are never evicted by resizing.
func (h *PoolHandler) Reconfigure(c *gin.Context) {
	var req reconfigureRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.TotalSeats == nil && req.AdminReserved == nil {
		response.Error(c, errors.NewBadRequest("total_seats or admin_reserved is required"))
		return
	}

	ctx := requestContext(c)

	current, err := h.allocator.State(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	total := current.TotalSeats
	if req.TotalSeats != nil {
		total = *req.TotalSeats
	}
	reserved := current.AdminReserved
	if req.AdminReserved != nil {
		reserved = *req.AdminReserved
	}
	if reserved >= total {
		response.Error(c, errors.NewBadRequest("admin_reserved must be smaller than total_seats"))
		return
	}

	if req.TotalSeats != nil {
		if err := h.allocator.SetTotalSeats(ctx, total); err != nil {
			response.Error(c, err)
			return
		}
	}
	if req.AdminReserved != nil {
		if err := h.allocator.SetAdminReserved(ctx, reserved); err != nil {
			response.Error(c, err)
			return
		}
	}

	state, err := h.allocator.State(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.recordSnapshot(c, state, "reconfigure")
	h.broadcast("pool.reconfigured", state)
	response.Success(c, http.StatusOK, state)
}

// Reconcile forces the pool back in line with the database ground truth.
func (h *PoolHandler) Reconcile(c *gin.Context) {
	drift, err := h.reconciler.Reconcile(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	state, err := h.allocator.State(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if drift {
		h.broadcast("pool.reconciled", state)
	}
	response.Success(c, http.StatusOK, gin.H{"drift_detected": drift, "state": state})
}

// Snapshots returns recent pool snapshots, newest first.
func (h *PoolHandler) Snapshots(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	var snapshots []models.PoolSnapshot
	err := h.db.WithContext(requestContext(c)).
		Order("created_at DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

func (h *PoolHandler) recordSnapshot(c *gin.Context, state seat.PoolState, source string) {
	if h.db == nil {
		return
	}
	snapshot := models.PoolSnapshot{
		TotalSeats:     state.TotalSeats,
		CheckedOut:     state.CheckedOut,
		Available:      state.Available,
		AdminReserved:  state.AdminReserved,
		ActiveSessions: state.ActiveSessions,
		Source:         source,
	}
	// Snapshot persistence is best effort; reconfiguration already took hold.
	_ = h.db.WithContext(requestContext(c)).Create(&snapshot).Error
}

func (h *PoolHandler) broadcast(event string, state seat.PoolState) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastStream(realtime.StreamPool, realtime.Message{
		Event: event,
		Data:  gin.H{"state": state},
	})
}
