package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() clientdomain.Repository {
	return &repo{}
}

const accountColumns = `id, external_id, email, display_name, status,
	 provider, provider_customer_id, provider_subscription_id,
	 plan_code, monthly_fee_cents, subscription_status, payment_status, cancel_at_period_end,
	 current_period_start, current_period_end, next_payment_at,
	 total_spent_cents, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *clientdomain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO client_accounts (
			id, external_id, email, display_name, status,
			provider, provider_customer_id, provider_subscription_id,
			plan_code, monthly_fee_cents, subscription_status, payment_status, cancel_at_period_end,
			current_period_start, current_period_end, next_payment_at,
			total_spent_cents, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ExternalID,
		a.Email,
		a.DisplayName,
		a.Status,
		a.Provider,
		a.ProviderCustomerID,
		a.ProviderSubscriptionID,
		a.PlanCode,
		a.MonthlyFeeCents,
		a.SubscriptionStatus,
		a.PaymentStatus,
		a.CancelAtPeriodEnd,
		a.CurrentPeriodStart,
		a.CurrentPeriodEnd,
		a.NextPaymentAt,
		a.TotalSpentCents,
		a.Metadata,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*clientdomain.Account, error) {
	var a clientdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM client_accounts WHERE id = ?`,
		id,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*clientdomain.Account, error) {
	var a clientdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM client_accounts WHERE external_id = ? LIMIT 1`,
		externalID,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, provider, customerID string) (*clientdomain.Account, error) {
	if customerID == "" {
		return nil, nil
	}
	var a clientdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM client_accounts
		 WHERE provider = ? AND provider_customer_id = ? LIMIT 1`,
		provider,
		customerID,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, subscriptionID string) (*clientdomain.Account, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var a clientdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM client_accounts
		 WHERE provider = ? AND provider_subscription_id = ? LIMIT 1`,
		provider,
		subscriptionID,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, a *clientdomain.Account) error {
	return db.WithContext(ctx).Exec(
		`UPDATE client_accounts SET
			email = ?, display_name = ?, status = ?,
			provider = ?, provider_customer_id = ?, provider_subscription_id = ?,
			plan_code = ?, monthly_fee_cents = ?, subscription_status = ?, payment_status = ?, cancel_at_period_end = ?,
			current_period_start = ?, current_period_end = ?, next_payment_at = ?,
			total_spent_cents = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		a.Email,
		a.DisplayName,
		a.Status,
		a.Provider,
		a.ProviderCustomerID,
		a.ProviderSubscriptionID,
		a.PlanCode,
		a.MonthlyFeeCents,
		a.SubscriptionStatus,
		a.PaymentStatus,
		a.CancelAtPeriodEnd,
		a.CurrentPeriodStart,
		a.CurrentPeriodEnd,
		a.NextPaymentAt,
		a.TotalSpentCents,
		a.Metadata,
		a.UpdatedAt,
		a.ID,
	).Error
}
