package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

const recordColumns = `id, invoice_number, account_id, provider, provider_invoice_id,
	 plan_code, amount_cents, currency, status, description,
	 issued_at, paid_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *invoicedomain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_records (
			id, invoice_number, account_id, provider, provider_invoice_id,
			plan_code, amount_cents, currency, status, description,
			issued_at, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.InvoiceNumber,
		rec.AccountID,
		rec.Provider,
		rec.ProviderInvoiceID,
		rec.PlanCode,
		rec.AmountCents,
		rec.Currency,
		rec.Status,
		rec.Description,
		rec.IssuedAt,
		rec.PaidAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*invoicedomain.Record, error) {
	var rec invoicedomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM invoice_records WHERE invoice_number = ? LIMIT 1`,
		number,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider, providerInvoiceID string) (*invoicedomain.Record, error) {
	if providerInvoiceID == "" {
		return nil, nil
	}
	var rec invoicedomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM invoice_records
		 WHERE provider = ? AND provider_invoice_id = ? LIMIT 1`,
		provider,
		providerInvoiceID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*invoicedomain.Record, error) {
	var records []*invoicedomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM invoice_records
		 WHERE account_id = ? ORDER BY issued_at DESC, id DESC`,
		accountID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
