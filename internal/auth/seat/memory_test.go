package seat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryAllocatorGrantsUntilExhausted(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(2, 0)

	res, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = alloc.TryAllocate(ctx, "user-3", "viewer")
	require.NoError(t, err)
	require.False(t, res.Granted)
	require.NotEmpty(t, res.Reason)
}

func TestMemoryAllocatorIdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(1, 0)

	res, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	// Same user again does not consume a second seat.
	res, err = alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, state.CheckedOut)
}

func TestMemoryAllocatorReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(1, 0)

	_, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)

	require.NoError(t, alloc.Release(ctx, "user-1"))
	// Releasing again, or releasing a never-holder, is not an error.
	require.NoError(t, alloc.Release(ctx, "user-1"))
	require.NoError(t, alloc.Release(ctx, "ghost"))

	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, state.CheckedOut)
}

func TestMemoryAllocatorAdminReservedCarveOut(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(2, 1)

	// First standard user takes the single unreserved seat.
	res, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	// Second standard user is denied even though a physical seat remains.
	res, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	require.False(t, res.Granted)

	// An admin takes the reserved seat.
	res, err = alloc.TryAllocate(ctx, "admin-1", "admin")
	require.NoError(t, err)
	require.True(t, res.Granted)

	// Pool fully exhausted now, even for admins.
	res, err = alloc.TryAllocate(ctx, "admin-2", "admin")
	require.NoError(t, err)
	require.False(t, res.Granted)

	// After the standard user leaves, the admin holds the only occupied
	// seat, but the free one is the reserved slot. The retrying standard
	// user stays locked out.
	require.NoError(t, alloc.Release(ctx, "user-1"))

	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, state.CheckedOut)

	res, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	require.False(t, res.Granted)

	// Another admin can still take it.
	res, err = alloc.TryAllocate(ctx, "admin-2", "admin")
	require.NoError(t, err)
	require.True(t, res.Granted)
}

func TestMemoryAllocatorAdminRoleCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(1, 1)

	res, err := alloc.TryAllocate(ctx, "admin-1", "Admin")
	require.NoError(t, err)
	require.True(t, res.Granted)
}

func TestMemoryAllocatorReconfigure(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(1, 0)

	_, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)

	res, err := alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	require.False(t, res.Granted)

	require.NoError(t, alloc.SetTotalSeats(ctx, 3))

	res, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	require.True(t, res.Granted)

	// Shrinking below occupancy does not evict holders.
	require.NoError(t, alloc.SetTotalSeats(ctx, 1))
	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, state.CheckedOut)
}

func TestMemoryAllocatorReconcileClearsOnDrift(t *testing.T) {
	ctx := context.Background()
	alloc := NewMemoryAllocator(5, 0)

	_, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	_, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)

	// Matching count leaves the set alone.
	require.NoError(t, alloc.Reconcile(ctx, 2))
	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, state.CheckedOut)

	// Mismatch clears the whole set.
	require.NoError(t, alloc.Reconcile(ctx, 1))
	state, err = alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, state.CheckedOut)
}
