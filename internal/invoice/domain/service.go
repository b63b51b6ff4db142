package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Record, error)
	FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider, providerInvoiceID string) (*Record, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*Record, error)
}

type AppendRequest struct {
	AccountID         snowflake.ID
	Provider          string
	ProviderInvoiceID string
	PlanCode          string
	AmountCents       int64
	Currency          string
	Status            Status
	Description       string
	PaidAt            *time.Time
}

// Service appends ledger entries with unique invoice numbers. Appends keyed
// by a provider invoice id are idempotent: a replay returns the existing
// record, with created reporting false, instead of writing a second one.
type Service interface {
	Append(ctx context.Context, req AppendRequest) (*Record, bool, error)
	AppendTx(ctx context.Context, tx *gorm.DB, req AppendRequest) (*Record, bool, error)
	ListByAccount(ctx context.Context, accountID snowflake.ID) ([]*Record, error)
}
