package domain

import "errors"

// Error taxonomy for subscription lifecycle operations. Validation and
// conflict errors are raised before any provider call; provider failures are
// surfaced as *payment/domain.ProviderError with the remote message intact.
var (
	ErrInvalidPlan           = errors.New("invalid_plan")
	ErrClientNotFound        = errors.New("client_not_found")
	ErrAlreadySubscribed     = errors.New("already_subscribed")
	ErrNoActiveSubscription  = errors.New("no_active_subscription")
	ErrSamePlan              = errors.New("same_plan")
	ErrNotScheduledForCancel = errors.New("not_scheduled_for_cancellation")
	ErrForbidden             = errors.New("forbidden")
)
