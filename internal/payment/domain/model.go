package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable dedupe ledger for webhook deliveries. The
// unique (provider, provider_event_id) pair makes replayed deliveries
// no-ops; ProcessedAt distinguishes stored-but-failed events that the
// provider should redeliver.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessError    string         `json:"process_error" gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeSubscriptionActivated = "subscription_activated"
	EventTypeSubscriptionPastDue   = "subscription_past_due"
	EventTypeSubscriptionCanceled  = "subscription_canceled"
	EventTypePaymentSucceeded      = "payment_succeeded"
	EventTypePaymentFailed         = "payment_failed"
)

// Event is the canonical webhook event parsed by adapters.
type Event struct {
	Provider          string
	ProviderEventID   string
	Type              string
	SubscriptionID    string
	CustomerID        string
	ProviderInvoiceID string
	AmountCents       int64
	Currency          string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	OccurredAt        time.Time
	RawPayload        []byte
}
