package seat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/filehub/internal/database/testutil"
	"github.com/charlesng35/filehub/internal/models"
)

type staticCounter struct {
	count int64
}

func (c *staticCounter) CountAllActive(ctx context.Context) (int64, error) {
	return c.count, nil
}

func TestReconcilerNoDrift(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	alloc := NewMemoryAllocator(5, 0)
	_, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)

	rec := NewReconciler(alloc, &staticCounter{count: 1}, db)

	drift, err := rec.Reconcile(ctx)
	require.NoError(t, err)
	require.False(t, drift)

	var snapshots []models.PoolSnapshot
	require.NoError(t, db.Find(&snapshots).Error)
	require.Len(t, snapshots, 1)
	require.False(t, snapshots[0].DriftDetected)
	require.Equal(t, 1, snapshots[0].CheckedOut)
	require.Equal(t, 1, snapshots[0].ActiveSessions)
	require.Empty(t, snapshots[0].DriftDetail)
}

func TestReconcilerCorrectsDrift(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	alloc := NewMemoryAllocator(5, 0)
	_, err := alloc.TryAllocate(ctx, "user-1", "viewer")
	require.NoError(t, err)
	_, err = alloc.TryAllocate(ctx, "user-2", "viewer")
	require.NoError(t, err)
	_, err = alloc.TryAllocate(ctx, "user-3", "viewer")
	require.NoError(t, err)

	// Database says only one session is actually alive.
	rec := NewReconciler(alloc, &staticCounter{count: 1}, db)

	drift, err := rec.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, drift)

	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, state.CheckedOut)

	var snapshot models.PoolSnapshot
	require.NoError(t, db.Where("drift_detected = ?", true).First(&snapshot).Error)
	require.Equal(t, 1, snapshot.CheckedOut)
	require.Equal(t, 1, snapshot.ActiveSessions)
	require.Equal(t, "reconciler", snapshot.Source)
	require.NotEmpty(t, snapshot.DriftDetail)
}

func TestReconcilerStartupRecovery(t *testing.T) {
	ctx := context.Background()

	alloc := NewMemoryAllocator(5, 0)
	_, err := alloc.TryAllocate(ctx, "stale-user", "viewer")
	require.NoError(t, err)

	// nil db: snapshots disabled, recovery still corrects the pool.
	rec := NewReconciler(alloc, &staticCounter{count: 0}, nil)
	require.NoError(t, rec.StartupRecovery(ctx))

	state, err := alloc.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, state.CheckedOut)
}
