package seat

import (
	"context"
	"strings"
)

// AllocationResult reports the outcome of a seat request. Reason is only
// populated when the request was denied.
type AllocationResult struct {
	Granted bool
	Reason  string
}

// PoolState is a point-in-time view of the seat pool.
type PoolState struct {
	TotalSeats     int `json:"total_seats"`
	CheckedOut     int `json:"checked_out"`
	Available      int `json:"available"`
	AdminReserved  int `json:"admin_reserved"`
	ActiveSessions int `json:"active_sessions"`
}

// Allocator manages the shared pool of concurrent seats. Allocation is
// idempotent per user key: a user who already holds a seat is granted
// again without consuming a second seat, and releasing a seat that is
// not held is not an error.
type Allocator interface {
	// TryAllocate requests a seat for the given user. The role decides
	// whether the admin-reserved carve-out applies.
	TryAllocate(ctx context.Context, userKey, role string) (AllocationResult, error)

	// Release returns the user's seat to the pool.
	Release(ctx context.Context, userKey string) error

	// State returns the current pool occupancy.
	State(ctx context.Context) (PoolState, error)

	// SetTotalSeats reconfigures the pool capacity. Shrinking below the
	// current occupancy is allowed; existing holders keep their seats.
	SetTotalSeats(ctx context.Context, total int) error

	// SetAdminReserved reconfigures the admin carve-out.
	SetAdminReserved(ctx context.Context, reserved int) error

	// Reconcile forces the pool back in line with the given ground-truth
	// occupancy count. Implementations may clear the entire allocation
	// set rather than track per-holder deltas.
	Reconcile(ctx context.Context, activeCount int) error
}

const (
	reasonExhausted      = "All available seats are occupied (some seats reserved for administrators)"
	reasonExhaustedAdmin = "All seats are occupied (including admin reserved)"
	denialRoleAdmin      = "admin"
	denialRoleStandard   = "user"
)

func isAdminRole(role string) bool {
	return strings.EqualFold(role, "admin")
}
