package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent reports false when the event id was already received.
	InsertEvent(ctx context.Context, db *gorm.DB, event *SaleEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, providerEventID string) (*SaleEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome, processedAt time.Time) error
}
