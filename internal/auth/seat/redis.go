package seat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/charlesng35/filehub/internal/cache"
	"github.com/charlesng35/filehub/pkg/logger"
	"github.com/charlesng35/filehub/pkg/metrics"
)

const (
	seatSetKey      = "seats:allocated"
	seatTotalKey    = "seats:total"
	seatReservedKey = "seats:admin_reserved"
)

// allocateScript performs the entire admission decision server-side so
// concurrent logins across instances cannot double-count a seat.
//
// KEYS[1] = allocated set, KEYS[2] = total, KEYS[3] = admin reserved
// ARGV[1] = user key, ARGV[2] = "1" when the caller is an admin
//
// Replies: 1 granted, 0 denied, -1 already a holder.
const allocateScript = `
local allocated_key = KEYS[1]
local total_key = KEYS[2]
local reserved_key = KEYS[3]
local user_key = ARGV[1]
local is_admin = tonumber(ARGV[2])

if redis.call('SISMEMBER', allocated_key, user_key) == 1 then
    return -1
end

local total = tonumber(redis.call('GET', total_key) or '0')
local reserved = tonumber(redis.call('GET', reserved_key) or '0')
local checked_out = redis.call('SCARD', allocated_key)

local available
if is_admin == 1 then
    available = total - checked_out
else
    available = total - checked_out - reserved
end

if available <= 0 then
    if is_admin == 1 and (total - checked_out) > 0 then
        redis.call('SADD', allocated_key, user_key)
        return 1
    end
    return 0
end

redis.call('SADD', allocated_key, user_key)
return 1
`

const releaseScript = `
return redis.call('SREM', KEYS[1], ARGV[1])
`

// RedisAllocator keeps the seat pool in Redis so every server instance
// admits against the same state.
type RedisAllocator struct {
	client *cache.RedisClient
	log    *zap.Logger
}

// NewRedisAllocator builds a Redis-backed allocator and seeds the capacity
// keys. Seeding overwrites whatever a previous instance wrote; the allocated
// set itself is left untouched so running sessions keep their seats.
func NewRedisAllocator(ctx context.Context, client *cache.RedisClient, totalSeats, adminReserved int) (*RedisAllocator, error) {
	a := &RedisAllocator{client: client, log: logger.WithModule("seat")}
	if err := client.SetInt64(ctx, seatTotalKey, int64(totalSeats)); err != nil {
		return nil, fmt.Errorf("seat: seed total: %w", err)
	}
	if err := client.SetInt64(ctx, seatReservedKey, int64(adminReserved)); err != nil {
		return nil, fmt.Errorf("seat: seed admin reserved: %w", err)
	}
	a.log.Info("redis seat allocator initialized",
		zap.Int("total_seats", totalSeats),
		zap.Int("admin_reserved", adminReserved))
	return a, nil
}

func (a *RedisAllocator) TryAllocate(ctx context.Context, userKey, role string) (AllocationResult, error) {
	admin := isAdminRole(role)
	isAdminArg := "0"
	if admin {
		isAdminArg = "1"
	}

	result, err := a.client.EvalInt(ctx, allocateScript,
		[]string{seatSetKey, seatTotalKey, seatReservedKey},
		userKey, isAdminArg)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("seat: allocate script: %w", err)
	}

	switch result {
	case 1, -1:
		a.refreshGauge(ctx)
		return AllocationResult{Granted: true}, nil
	case 0:
		reason := reasonExhausted
		denialRole := denialRoleStandard
		if admin {
			reason = reasonExhaustedAdmin
			denialRole = denialRoleAdmin
		}
		metrics.SeatDenials.WithLabelValues(denialRole).Inc()
		a.log.Warn("seat allocation denied", zap.String("user", userKey))
		return AllocationResult{Reason: reason}, nil
	default:
		return AllocationResult{}, fmt.Errorf("seat: unexpected script reply %d", result)
	}
}

func (a *RedisAllocator) Release(ctx context.Context, userKey string) error {
	removed, err := a.client.EvalInt(ctx, releaseScript, []string{seatSetKey}, userKey)
	if err != nil {
		return fmt.Errorf("seat: release script: %w", err)
	}
	if removed == 0 {
		a.log.Warn("released seat was not checked out", zap.String("user", userKey))
		return nil
	}
	a.refreshGauge(ctx)
	return nil
}

func (a *RedisAllocator) State(ctx context.Context) (PoolState, error) {
	total, _, err := a.client.GetInt64(ctx, seatTotalKey)
	if err != nil {
		return PoolState{}, fmt.Errorf("seat: read total: %w", err)
	}
	reserved, _, err := a.client.GetInt64(ctx, seatReservedKey)
	if err != nil {
		return PoolState{}, fmt.Errorf("seat: read admin reserved: %w", err)
	}
	checkedOut, err := a.client.SCard(ctx, seatSetKey)
	if err != nil {
		return PoolState{}, fmt.Errorf("seat: read allocated set: %w", err)
	}

	available := total - checkedOut
	if available < 0 {
		available = 0
	}
	return PoolState{
		TotalSeats:     int(total),
		CheckedOut:     int(checkedOut),
		Available:      int(available),
		AdminReserved:  int(reserved),
		ActiveSessions: int(checkedOut),
	}, nil
}

func (a *RedisAllocator) SetTotalSeats(ctx context.Context, total int) error {
	if err := a.client.SetInt64(ctx, seatTotalKey, int64(total)); err != nil {
		return fmt.Errorf("seat: set total: %w", err)
	}
	a.log.Info("total seats updated", zap.Int("total", total))
	return nil
}

func (a *RedisAllocator) SetAdminReserved(ctx context.Context, reserved int) error {
	if err := a.client.SetInt64(ctx, seatReservedKey, int64(reserved)); err != nil {
		return fmt.Errorf("seat: set admin reserved: %w", err)
	}
	a.log.Info("admin reserved seats updated", zap.Int("reserved", reserved))
	return nil
}

func (a *RedisAllocator) Reconcile(ctx context.Context, activeCount int) error {
	state, err := a.State(ctx)
	if err != nil {
		return err
	}
	if state.CheckedOut == activeCount {
		return nil
	}

	// Holders are opaque keys; without knowing which are stale the only
	// safe correction is to clear the set and let live sessions re-register.
	a.log.Warn("seat pool drift detected, clearing allocation set",
		zap.Int("tracked", state.CheckedOut),
		zap.Int("actual", activeCount))
	if err := a.client.Delete(ctx, seatSetKey); err != nil {
		return fmt.Errorf("seat: clear allocated set: %w", err)
	}
	metrics.SeatsCheckedOut.Set(0)
	return nil
}

func (a *RedisAllocator) refreshGauge(ctx context.Context) {
	if n, err := a.client.SCard(ctx, seatSetKey); err == nil {
		metrics.SeatsCheckedOut.Set(float64(n))
	}
}
