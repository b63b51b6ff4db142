package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EventRepository interface {
	Insert(ctx context.Context, db *gorm.DB, record *EventRecord) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	// MarkProcessed stamps a successfully handled event; replays of it
	// become no-ops.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// RecordError stores the failure reason but leaves the event
	// unprocessed so the provider's redelivery gets another attempt.
	RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error
}
