package domain

import "time"

// SubscriptionFree is the status of every newly created caller
const SubscriptionFree = "free"

// Caller is an authenticated user of the service
type Caller struct {
	ID    string
	Email string
}

// Quota is the persisted monthly usage counter of a caller
type Quota struct {
	CallerID           string
	Email              string
	SubscriptionStatus string
	QuotaLimit         int
	UsageCount         int
	QuotaResetDate     time.Time
	CreatedAt          time.Time
}

// QuotaSnapshot is the caller-facing view of a quota
type QuotaSnapshot struct {
	SubscriptionStatus string `json:"subscriptionStatus"`
	UsageCount         int    `json:"usageCount"`
	QuotaLimit         int    `json:"quotaLimit"`
	Remaining          int    `json:"remaining"`
}

// Snapshot returns the caller-facing view, remaining never goes below zero
func (q Quota) Snapshot() QuotaSnapshot {
	return QuotaSnapshot{
		SubscriptionStatus: q.SubscriptionStatus,
		UsageCount:         q.UsageCount,
		QuotaLimit:         q.QuotaLimit,
		Remaining:          max(0, q.QuotaLimit-q.UsageCount),
	}
}
