package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"boongle/internal/domain"
	"boongle/internal/obs"
)

// MaxCASAttempts bounds the read-compute-write retries on version conflicts.
const MaxCASAttempts = 3

// Ledger runs entitlement mutations against the profile store. Each call
// reads the record, computes the next state with the pure engine and writes
// only the changed fields, guarded by the version read.
type Ledger struct {
	store    domain.ProfileStore
	clock    domain.Clock
	logger   zerolog.Logger
	attempts int
}

// NewLedger constructs a Ledger. A nil clock uses the system clock.
func NewLedger(store domain.ProfileStore, clock domain.Clock, logger zerolog.Logger) *Ledger {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Ledger{store: store, clock: clock, logger: logger, attempts: MaxCASAttempts}
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// Load fetches the profile and persists a due reset before returning it, so
// a stale counter is never handed out.
func (l *Ledger) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := l.mutate(ctx, userID, "load", func(p domain.Profile, now time.Time) (domain.Profile, error) {
		next, _ := Reconcile(p, now)
		return next, nil
	})
	obs.ObserveProfileLoad(err)
	return p, err
}

// Debit commits one generation. It keeps running after ctx is cancelled: a
// generation that already produced images is always paid for.
func (l *Ledger) Debit(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx = context.WithoutCancel(ctx)
	p, err := l.mutate(ctx, userID, "debit", func(p domain.Profile, now time.Time) (domain.Profile, error) {
		next, _ := Reconcile(p, now)
		return Decrement(next)
	})
	if errors.Is(err, domain.ErrQuotaExceeded) {
		err = domain.ErrQuotaRace
	}
	obs.ObserveDebit(err)
	return p, err
}

// Claim switches the stored profile to plan.
func (l *Ledger) Claim(ctx context.Context, userID string, plan domain.Plan) (*domain.Profile, error) {
	if !plan.Valid() {
		return nil, domain.ErrInvalidPlan
	}
	ctx = context.WithoutCancel(ctx)
	return l.mutate(ctx, userID, "claim", func(p domain.Profile, now time.Time) (domain.Profile, error) {
		return ApplyPlanClaim(p, plan, now)
	})
}

func (l *Ledger) mutate(ctx context.Context, userID, op string, next func(domain.Profile, time.Time) (domain.Profile, error)) (*domain.Profile, error) {
	for attempt := 1; attempt <= l.attempts; attempt++ {
		current, err := l.store.Fetch(ctx, userID)
		if err != nil {
			return nil, storeFailure("fetch", err)
		}
		updated, err := next(*current, l.clock.Now())
		if err != nil {
			return current, err
		}
		patch := Diff(*current, updated)
		if patch.Empty() {
			return current, nil
		}
		version := current.Version
		patch.IfVersion = &version

		stored, err := l.store.Update(ctx, userID, patch)
		if errors.Is(err, domain.ErrVersionConflict) {
			l.logger.Warn().
				Str("user_id", userID).
				Str("op", op).
				Int("attempt", attempt).
				Int64("version", version).
				Msg("entitlement: profile changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, storeFailure("update", err)
		}
		l.logger.Debug().
			Str("user_id", userID).
			Str("op", op).
			Str("plan", string(stored.ActivePlan)).
			Int64("version", stored.Version).
			Msg("entitlement: profile updated")
		return stored, nil
	}
	return nil, domain.ErrVersionConflict
}

func storeFailure(op string, err error) error {
	var storeErr *domain.StoreError
	switch {
	case errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrVersionConflict),
		errors.As(err, &storeErr):
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
