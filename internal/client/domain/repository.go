package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("client_account_not_found")
	ErrDuplicateClient = errors.New("client_account_exists")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Account, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, provider, customerID string) (*Account, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, subscriptionID string) (*Account, error)
	Update(ctx context.Context, db *gorm.DB, account *Account) error
}
