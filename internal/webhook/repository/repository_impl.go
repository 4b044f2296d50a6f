package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.SaleEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO sale_events (
			id, org_id, provider_event_id, event_type, external_transaction_id,
			payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, provider_event_id) DO NOTHING`,
		event.ID,
		event.OrgID,
		event.ProviderEventID,
		event.EventType,
		event.ExternalTransactionID,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, providerEventID string) (*domain.SaleEvent, error) {
	var item domain.SaleEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, provider_event_id, event_type, external_transaction_id,
			payload, outcome, received_at, processed_at
		 FROM sale_events
		 WHERE org_id = ? AND provider_event_id = ?
		 LIMIT 1`,
		orgID,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.Outcome, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sale_events SET outcome = ?, processed_at = ? WHERE id = ?`,
		string(outcome),
		processedAt,
		id,
	).Error
}
