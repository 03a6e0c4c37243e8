package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/lib/pq"

	"github.com/umputun/commentscope/pkg/domain"
)

// errConflict reports a lost optimistic concurrency race, the update is retried
var errConflict = errors.New("concurrent update conflict")

// retryPolicy sets how persistently withRetry repeats a retryable failure
type retryPolicy struct {
	attempts int
	initial  time.Duration
	maxDelay time.Duration
}

var (
	// lockRetry covers sqlite busy errors, rare with busy_timeout set
	lockRetry = retryPolicy{attempts: 5, initial: 50 * time.Millisecond, maxDelay: 2 * time.Second}

	// conflictRetry covers lost version races. Only committed writes make others lose, so a
	// caller can lose at most once per concurrent write on the same record. Linear growth
	// keeps the delay finite for large attempt counts, jitter spreads the retrying writers.
	conflictRetry = retryPolicy{attempts: 100, initial: 5 * time.Millisecond, maxDelay: 100 * time.Millisecond}
)

// withRetry runs fn with backoff while the returned error is retryable.
// Any other error stops the retries and is returned as is.
func withRetry(ctx context.Context, policy retryPolicy, retryable func(error) bool, fn func() error) error {
	var fatal error
	retrier := repeater.NewBackoff(policy.attempts, policy.initial, repeater.WithMaxDelay(policy.maxDelay),
		repeater.WithBackoffType(repeater.BackoffLinear), repeater.WithJitter(0.5))
	err := retrier.Do(ctx, func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err // repeater will retry this
		}
		fatal = err
		return nil
	})
	if fatal != nil {
		return fatal
	}
	return err
}

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}

// isPgRetryable checks for serialization failures, deadlocks and the unique violation
// raised when two transactions create the same record
func isPgRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

func isConflict(err error) bool {
	return errors.Is(err, errConflict)
}

// quotaDoc is the document layout shared by the document stores.
// Field names follow the users collection of the hosted service.
type quotaDoc struct {
	ID                 string    `firestore:"-" bson:"_id" dynamodbav:"id"`
	Email              string    `firestore:"email" bson:"email" dynamodbav:"email"`
	SubscriptionStatus string    `firestore:"subscriptionStatus" bson:"subscriptionStatus" dynamodbav:"subscriptionStatus"`
	QuotaLimit         int       `firestore:"quotaLimit" bson:"quotaLimit" dynamodbav:"quotaLimit"`
	UsageCount         int       `firestore:"usageCount" bson:"usageCount" dynamodbav:"usageCount"`
	QuotaResetDate     time.Time `firestore:"quotaResetDate" bson:"quotaResetDate" dynamodbav:"quotaResetDate"`
	CreatedAt          time.Time `firestore:"createdAt" bson:"createdAt" dynamodbav:"createdAt"`
	Version            int64     `firestore:"-" bson:"version" dynamodbav:"version"`
}

func newQuotaDoc(q *domain.Quota, version int64) quotaDoc {
	return quotaDoc{
		ID:                 q.CallerID,
		Email:              q.Email,
		SubscriptionStatus: q.SubscriptionStatus,
		QuotaLimit:         q.QuotaLimit,
		UsageCount:         q.UsageCount,
		QuotaResetDate:     q.QuotaResetDate.UTC(),
		CreatedAt:          q.CreatedAt.UTC(),
		Version:            version,
	}
}

func (d quotaDoc) toDomain() *domain.Quota {
	return &domain.Quota{
		CallerID:           d.ID,
		Email:              d.Email,
		SubscriptionStatus: d.SubscriptionStatus,
		QuotaLimit:         d.QuotaLimit,
		UsageCount:         d.UsageCount,
		QuotaResetDate:     d.QuotaResetDate,
		CreatedAt:          d.CreatedAt,
	}
}
