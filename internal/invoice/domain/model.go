package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Record is one append-only ledger entry. AmountCents may be negative to
// represent a credit. A record whose PaidAt is set is never mutated again.
type Record struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceNumber string       `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	AccountID     snowflake.ID `json:"account_id" gorm:"not null;index"`

	Provider          string `json:"provider" gorm:"type:text;not null;default:''"`
	ProviderInvoiceID string `json:"provider_invoice_id" gorm:"type:text;not null;default:''"`

	PlanCode    string `json:"plan_code" gorm:"type:text;not null;default:''"`
	AmountCents int64  `json:"amount_cents" gorm:"not null;default:0"`
	Currency    string `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Status      Status `json:"status" gorm:"type:text;not null"`
	Description string `json:"description" gorm:"type:text;not null;default:''"`

	IssuedAt  time.Time  `json:"issued_at" gorm:"not null"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null"`
}

func (Record) TableName() string { return "invoice_records" }
