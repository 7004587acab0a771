package seat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/filehub/pkg/logger"
	"github.com/charlesng35/filehub/pkg/metrics"
)

// MemoryAllocator tracks seat holders in process memory. Suitable for
// single-instance deployments; multi-instance deployments should use the
// Redis-backed allocator so every instance sees the same pool.
type MemoryAllocator struct {
	mu            sync.Mutex
	holders       map[string]struct{}
	totalSeats    int
	adminReserved int
	log           *zap.Logger
}

// NewMemoryAllocator builds an in-memory allocator with the given capacity.
func NewMemoryAllocator(totalSeats, adminReserved int) *MemoryAllocator {
	return &MemoryAllocator{
		holders:       make(map[string]struct{}),
		totalSeats:    totalSeats,
		adminReserved: adminReserved,
		log:           logger.WithModule("seat"),
	}
}

func (a *MemoryAllocator) TryAllocate(_ context.Context, userKey, role string) (AllocationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, held := a.holders[userKey]; held {
		return AllocationResult{Granted: true}, nil
	}

	checkedOut := len(a.holders)
	admin := isAdminRole(role)

	available := a.totalSeats - checkedOut
	if !admin {
		available -= a.adminReserved
	}

	if available <= 0 {
		if admin && a.totalSeats-checkedOut > 0 {
			// Admins may consume the reserved slots once the general
			// pool is exhausted.
			a.grant(userKey)
			return AllocationResult{Granted: true}, nil
		}
		reason := reasonExhausted
		denialRole := denialRoleStandard
		if admin {
			reason = reasonExhaustedAdmin
			denialRole = denialRoleAdmin
		}
		metrics.SeatDenials.WithLabelValues(denialRole).Inc()
		a.log.Warn("seat allocation denied",
			zap.String("user", userKey),
			zap.Int("checked_out", checkedOut),
			zap.Int("total", a.totalSeats))
		return AllocationResult{Reason: reason}, nil
	}

	a.grant(userKey)
	return AllocationResult{Granted: true}, nil
}

// grant records the holder; callers must hold a.mu.
func (a *MemoryAllocator) grant(userKey string) {
	a.holders[userKey] = struct{}{}
	metrics.SeatsCheckedOut.Set(float64(len(a.holders)))
}

func (a *MemoryAllocator) Release(_ context.Context, userKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, held := a.holders[userKey]; !held {
		a.log.Warn("released seat was not checked out", zap.String("user", userKey))
		return nil
	}
	delete(a.holders, userKey)
	metrics.SeatsCheckedOut.Set(float64(len(a.holders)))
	return nil
}

func (a *MemoryAllocator) State(_ context.Context) (PoolState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	checkedOut := len(a.holders)
	available := a.totalSeats - checkedOut
	if available < 0 {
		available = 0
	}
	return PoolState{
		TotalSeats:     a.totalSeats,
		CheckedOut:     checkedOut,
		Available:      available,
		AdminReserved:  a.adminReserved,
		ActiveSessions: checkedOut,
	}, nil
}

func (a *MemoryAllocator) SetTotalSeats(_ context.Context, total int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSeats = total
	return nil
}

func (a *MemoryAllocator) SetAdminReserved(_ context.Context, reserved int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adminReserved = reserved
	return nil
}

func (a *MemoryAllocator) Reconcile(_ context.Context, activeCount int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.holders) == activeCount {
		return nil
	}
	a.log.Warn("seat pool drift detected, clearing allocation set",
		zap.Int("tracked", len(a.holders)),
		zap.Int("actual", activeCount))
	a.holders = make(map[string]struct{})
	metrics.SeatsCheckedOut.Set(0)
	return nil
}
