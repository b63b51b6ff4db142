package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
)

// ProrationResult is computed fresh on every plan change and never persisted.
// Amounts are integer minor units; RemainingRatio is kept for explanation
// payloads. NetCents > 0 means the client owes the difference, < 0 means a
// credit.
type ProrationResult struct {
	RemainingRatio    decimal.Decimal `json:"remaining_ratio"`
	UnusedCreditCents int64           `json:"unused_credit_cents"`
	NewChargeCents    int64           `json:"new_charge_cents"`
	NetCents          int64           `json:"net_cents"`
}

type CreateSubscriptionRequest struct {
	ClientExternalID string
	PlanCode         string
}

type CreateSubscriptionResponse struct {
	SubscriptionID   string     `json:"subscription_id"`
	PlanCode         string     `json:"plan_code"`
	PlanName         string     `json:"plan_name"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	CompletionSecret string     `json:"completion_secret"`
	NextPaymentAt    *time.Time `json:"next_payment_at,omitempty"`
}

type ChangePlanRequest struct {
	ClientExternalID string
	NewPlanCode      string
}

type ChangePlanResponse struct {
	PlanCode      string          `json:"plan_code"`
	PlanName      string          `json:"plan_name"`
	AmountCents   int64           `json:"amount_cents"`
	Proration     ProrationResult `json:"proration"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
}

type CancelSubscriptionRequest struct {
	ClientExternalID string
	Immediate        bool
	Reason           string
}

type CancelSubscriptionResponse struct {
	Immediate     bool       `json:"immediate"`
	EffectiveAt   *time.Time `json:"effective_at,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
}

type ReactivateSubscriptionRequest struct {
	ClientExternalID string
}

// SubscriptionView is the client-facing summary of the current subscription.
type SubscriptionView struct {
	PlanCode      string     `json:"plan_code"`
	PlanName      string     `json:"plan_name"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Features      []string   `json:"features"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	CancelAtEnd   bool       `json:"cancel_at_period_end"`
	NextPaymentAt *time.Time `json:"next_payment_at,omitempty"`
	TotalSpent    int64      `json:"total_spent_cents"`
}

type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreateSubscriptionResponse, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*ChangePlanResponse, error)
	CancelSubscription(ctx context.Context, req CancelSubscriptionRequest) (*CancelSubscriptionResponse, error)
	ReactivateSubscription(ctx context.Context, req ReactivateSubscriptionRequest) error
	GetSubscription(ctx context.Context, clientExternalID string) (*SubscriptionView, error)

	// ApplyEvent reconciles local state from a verified, deduplicated
	// provider event. It must be idempotent: replays may reach it when the
	// dedupe record exists but processing previously failed.
	ApplyEvent(ctx context.Context, event *paymentdomain.Event) error
}
