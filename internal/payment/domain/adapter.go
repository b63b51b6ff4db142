package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/socialdesklabs/socialdesk/internal/plan"
)

// Subscription is the provider-side view of a recurring subscription,
// normalized across adapters.
type Subscription struct {
	ID                 string
	Status             string // "active", "past_due", "canceled", "incomplete"
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	PriceRef           string
}

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// CreatedSubscription adds the client-side completion handle the payment UI
// needs to finish the initial authorization.
type CreatedSubscription struct {
	Subscription
	CompletionSecret string
}

type EnsureCustomerRequest struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// Adapter is the contract every payment provider integration satisfies.
// Mutating calls must be safe to invoke at most once per logical operation;
// adapters use provider idempotency keys or existence checks to guarantee
// that.
type Adapter interface {
	Name() string

	EnsureCustomer(ctx context.Context, req EnsureCustomerRequest) (string, error)
	CreateSubscription(ctx context.Context, customerID string, p plan.Plan, idempotencyKey string) (*CreatedSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID string, p plan.Plan) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*Subscription, error)
	ReactivateSubscription(ctx context.Context, subscriptionID string) error

	// Verify authenticates a raw webhook delivery before any processing.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse maps a verified delivery to a canonical Event. ErrEventIgnored
	// marks event kinds this service does not react to.
	Parse(ctx context.Context, payload []byte) (*Event, error)
}
