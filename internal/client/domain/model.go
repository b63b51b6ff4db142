package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AccountStatus is the business status of a client engagement, distinct from
// the subscription state. A paused account keeps its history but receives no
// service.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountPaused AccountStatus = "paused"
)

type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentOverdue PaymentStatus = "overdue"
)

// Account is a managed client of the agency. Provider fields use the empty
// string for "not set"; ProviderSubscriptionID is non-empty exactly when
// SubscriptionStatus is not "none".
type Account struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	ExternalID  string        `json:"external_id" gorm:"type:text;not null;uniqueIndex"`
	Email       string        `json:"email" gorm:"type:text;not null"`
	DisplayName string        `json:"display_name" gorm:"type:text;not null;default:''"`
	Status      AccountStatus `json:"status" gorm:"type:text;not null;default:'active'"`

	Provider               string `json:"provider" gorm:"type:text;not null;default:''"`
	ProviderCustomerID     string `json:"provider_customer_id" gorm:"type:text;not null;default:'';index"`
	ProviderSubscriptionID string `json:"provider_subscription_id" gorm:"type:text;not null;default:'';index"`

	PlanCode           string             `json:"plan_code" gorm:"type:text;not null;default:''"`
	MonthlyFeeCents    int64              `json:"monthly_fee_cents" gorm:"not null;default:0"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:text;not null;default:'none'"`
	PaymentStatus      PaymentStatus      `json:"payment_status" gorm:"type:text;not null;default:'pending'"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`

	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	NextPaymentAt      *time.Time `json:"next_payment_at"`

	TotalSpentCents int64             `json:"total_spent_cents" gorm:"not null;default:0"`
	Metadata        datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "client_accounts" }

// HasActiveSubscription reports whether the account currently carries a
// provider-backed subscription, past-due included.
func (a *Account) HasActiveSubscription() bool {
	if a == nil {
		return false
	}
	return a.ProviderSubscriptionID != "" &&
		(a.SubscriptionStatus == SubscriptionActive || a.SubscriptionStatus == SubscriptionPastDue)
}

// ClearSubscription resets every subscription-scoped field after a
// cancellation became effective.
func (a *Account) ClearSubscription() {
	a.ProviderSubscriptionID = ""
	a.PlanCode = ""
	a.MonthlyFeeCents = 0
	a.SubscriptionStatus = SubscriptionNone
	a.CancelAtPeriodEnd = false
	a.CurrentPeriodStart = nil
	a.CurrentPeriodEnd = nil
	a.NextPaymentAt = nil
	a.Status = AccountPaused
}
