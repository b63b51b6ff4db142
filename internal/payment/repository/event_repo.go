package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"gorm.io/gorm"
)

type eventRepo struct{}

func ProvideEventRepository() paymentdomain.EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) Insert(ctx context.Context, db *gorm.DB, rec *paymentdomain.EventRecord) error {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload,
			received_at, processed_at, process_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		rec.ID,
		rec.Provider,
		rec.ProviderEventID,
		rec.EventType,
		rec.Payload,
		rec.ReceivedAt,
		rec.ProcessedAt,
		rec.ProcessError,
		rec.CreatedAt,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentdomain.ErrDuplicateEvent
	}
	return nil
}

func (r *eventRepo) FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	var rec paymentdomain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload,
		 received_at, processed_at, process_error, created_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ? LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *eventRepo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ?, process_error = '' WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *eventRepo) RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET process_error = ? WHERE id = ?`,
		message,
		id,
	).Error
}
