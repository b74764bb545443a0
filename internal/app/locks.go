package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"casa_booking/internal/domain"
)

// Option tunes a service; tests use it to pin the clock.
type Option func(*options)

type options struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// LockManager issues and releases the soft locks that hold inventory while a
// shopper completes checkout.
type LockManager struct {
	store domain.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewLockManager(s domain.Store, ttl time.Duration, opts ...Option) *LockManager {
	if ttl <= 0 {
		ttl = domain.DefaultLockTTL
	}
	o := buildOptions(opts)
	return &LockManager{store: s, ttl: ttl, now: o.now}
}

// Acquire holds target for dr. Another live lock anywhere in the target's hierarchy
// fails with ALREADY_LOCKED; an overlapping booking or maintenance block with CONFLICT.
func (m *LockManager) Acquire(ctx context.Context, target domain.Target, dr domain.DateRange) (domain.InventoryLock, error) {
	if !target.Type.Bookable() || target.ID == "" {
		return domain.InventoryLock{}, domain.Errorf(domain.CodeValidation, "targetType must be ROOM or UNIT with an id")
	}
	now := m.now()
	// Expired locks never conflict, so a failed purge only delays housekeeping.
	if _, err := m.CleanExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("expired lock purge failed")
	}

	// The unit row is the serialization point for everything under it. Resolve it
	// before the transaction so the row lock is the first thing taken there.
	unitID, err := unitOf(ctx, m.store, target)
	if err != nil {
		return domain.InventoryLock{}, err
	}

	var lock domain.InventoryLock
	err = m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.LockUnits(ctx, []string{unitID}); err != nil {
			return fmt.Errorf("lock unit %s: %w", unitID, err)
		}

		holds, err := NewTxConflictResolver(tx).Conflicts(ctx, ConflictQuery{Target: target, Range: dr, Now: now})
		if err != nil {
			return err
		}
		for _, h := range holds {
			if h.Kind == domain.HoldLock {
				return domain.Errorf(domain.CodeAlreadyLocked, "someone is completing a booking for %s, try again shortly", target)
			}
		}
		if len(holds) > 0 {
			return domain.Errorf(domain.CodeConflict, "%s is not available for %s", target, dr)
		}

		lock = domain.InventoryLock{
			ID:         uuid.NewString(),
			SessionKey: uuid.NewString(),
			Target:     target,
			CheckIn:    dr.CheckIn,
			CheckOut:   dr.CheckOut,
			ExpiresAt:  now.Add(m.ttl),
			CreatedAt:  now,
		}
		return tx.InsertLock(ctx, lock)
	})
	if err != nil {
		return domain.InventoryLock{}, err
	}

	log.Info().
		Str("target", target.String()).
		Str("range", dr.String()).
		Time("expires_at", lock.ExpiresAt).
		Msg("lock acquired")
	return lock, nil
}

// Release drops a lock. Unknown keys are not an error.
func (m *LockManager) Release(ctx context.Context, sessionKey string) error {
	n, err := m.store.DeleteLocks(ctx, []string{sessionKey})
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n > 0 {
		log.Debug().Str("session", sessionKey).Msg("lock released")
	}
	return nil
}

// CleanExpired purges every lock past its expiry.
func (m *LockManager) CleanExpired(ctx context.Context) (int64, error) {
	n, err := m.store.CleanExpiredLocks(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("clean expired locks: %w", err)
	}
	return n, nil
}

// RunSweeper calls CleanExpired every interval until ctx is done. onSwept, when
// set, receives the count of every successful pass.
func (m *LockManager) RunSweeper(ctx context.Context, interval time.Duration, onSwept func(n int64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("lock sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lock sweeper stopped")
			return
		case <-ticker.C:
			n, err := m.CleanExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("lock sweep failed")
				continue
			}
			if onSwept != nil {
				onSwept(n)
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("expired locks swept")
			}
		}
	}
}
