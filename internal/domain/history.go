package domain

import (
	"fmt"
	"strings"
	"time"
)

// Well-known subscription change types. The column is free-form so new
// producers do not require a migration; these cover the current callers.
const (
	ChangeCreated       = "created"
	ChangeRenewed       = "renewed"
	ChangePlanChanged   = "plan_changed"
	ChangePaused        = "paused"
	ChangeCanceled      = "canceled"
	ChangePaymentFailed = "payment_failed"
)

// HistoryRecord is one append-only audit entry for a subscription state
// change. Records are created once and never mutated.
type HistoryRecord struct {
	ID             string
	SubscriptionID string
	UserID         string
	ChangeType     string
	Description    string
	OldValue       string
	NewValue       string
	Metadata       map[string]string
	ActorIP        string
	ActorUserAgent string
	CreatedAt      time.Time
}

func (r *HistoryRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: history record is required", ErrValidation)
	}
	if strings.TrimSpace(r.SubscriptionID) == "" {
		return fmt.Errorf("%w: subscriptionId is required", ErrValidation)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strings.TrimSpace(r.ChangeType) == "" {
		return fmt.Errorf("%w: changeType is required", ErrValidation)
	}
	return nil
}

// Matches reports whether two records describe the same state change. This is
// the reconciliation identity: subscription, user, change type, and creation
// time compared at second precision to survive serialization round-trips.
func (r *HistoryRecord) Matches(subscriptionID, userID, changeType string, createdAt time.Time) bool {
	if r == nil {
		return false
	}
	return r.SubscriptionID == subscriptionID &&
		r.UserID == userID &&
		r.ChangeType == changeType &&
		r.CreatedAt.UTC().Truncate(time.Second).Equal(createdAt.UTC().Truncate(time.Second))
}
