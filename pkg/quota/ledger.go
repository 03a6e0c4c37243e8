// Package quota implements the per-caller monthly usage ledger.
// Every read-modify-write of a caller's counter goes through Store.Update,
// which is the only mechanism serializing concurrent charges.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/umputun/commentscope/pkg/domain"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store

// Store provides atomic read-modify-write access to quota records keyed by caller id.
// fn receives the current record or nil if the caller has none. Returning a non-nil
// record persists it, returning nil leaves storage untouched, returning an error aborts
// the scope without any write. Implementations may call fn more than once when they
// retry on write conflicts.
type Store interface {
	Update(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error
}

// Config defines quota defaults
type Config struct {
	FreeLimit int            // monthly limit of new callers
	Plans     map[string]int // monthly limit per subscription status, applied on reset
	Location  *time.Location // calendar used for month boundaries, UTC if nil
}

// Ledger charges and reports caller quotas
type Ledger struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewLedger makes a ledger on top of the given store
func NewLedger(store Store, cfg Config) *Ledger {
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ledger{store: store, cfg: cfg, now: time.Now}
}

// Charge consumes one usage unit of the caller. Reset of an expired period happens
// before the limit check, in the same atomic scope. Returns domain.ErrQuotaExceeded
// without any mutation if the caller has nothing left. A committed charge is final.
func (l *Ledger) Charge(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
	var snap domain.QuotaSnapshot
	err := l.store.Update(ctx, caller.ID, func(current *domain.Quota) (*domain.Quota, error) {
		rec := l.prepare(current, caller)
		if rec.UsageCount >= rec.QuotaLimit {
			return nil, domain.ErrQuotaExceeded
		}
		rec.UsageCount++
		snap = rec.Snapshot()
		return &rec, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			log.Printf("[INFO] quota exceeded for %s", caller.ID)
			return domain.QuotaSnapshot{}, domain.ErrQuotaExceeded
		}
		return domain.QuotaSnapshot{}, fmt.Errorf("%w: charge %s: %w", domain.ErrPersistence, caller.ID, err)
	}
	log.Printf("[DEBUG] charged %s, %d/%d used", caller.ID, snap.UsageCount, snap.QuotaLimit)
	return snap, nil
}

// Status returns the current quota of the caller without charging it.
// A missing record is created and a due reset is persisted.
func (l *Ledger) Status(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
	var snap domain.QuotaSnapshot
	err := l.store.Update(ctx, caller.ID, func(current *domain.Quota) (*domain.Quota, error) {
		rec := l.prepare(current, caller)
		snap = rec.Snapshot()
		if current != nil && rec == *current {
			return nil, nil // nothing changed
		}
		return &rec, nil
	})
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("%w: status %s: %w", domain.ErrPersistence, caller.ID, err)
	}
	return snap, nil
}

// prepare returns a copy of current, or a default record if current is nil,
// with an expired period already reset
func (l *Ledger) prepare(current *domain.Quota, caller domain.Caller) domain.Quota {
	now := l.now().In(l.cfg.Location)
	if current == nil {
		email := caller.Email
		if email == "" {
			email = "unknown"
		}
		return domain.Quota{
			CallerID:           caller.ID,
			Email:              email,
			SubscriptionStatus: domain.SubscriptionFree,
			QuotaLimit:         l.cfg.FreeLimit,
			UsageCount:         0,
			QuotaResetDate:     NextReset(now),
			CreatedAt:          now,
		}
	}

	rec := *current
	if rec.QuotaResetDate.Before(now) {
		log.Printf("[DEBUG] resetting quota for %s, period ended %s", rec.CallerID, rec.QuotaResetDate.Format(time.RFC3339))
		rec.UsageCount = 0
		rec.QuotaResetDate = NextReset(now)
		rec.QuotaLimit = l.planLimit(rec)
	}
	return rec
}

// planLimit returns the configured limit for the record's subscription status,
// falling back to the stored limit for unknown statuses
func (l *Ledger) planLimit(rec domain.Quota) int {
	if rec.SubscriptionStatus == domain.SubscriptionFree {
		return l.cfg.FreeLimit
	}
	if limit, ok := l.cfg.Plans[rec.SubscriptionStatus]; ok && limit > 0 {
		return limit
	}
	return rec.QuotaLimit
}

// NextReset returns the first instant of the calendar month following t, in t's location
func NextReset(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}
