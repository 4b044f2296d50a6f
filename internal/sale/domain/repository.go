package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID          snowflake.ID
	ReferralLinkID *snowflake.ID
	BuyerUserID    *snowflake.ID
	Status         Status
	StartAt        *time.Time
	EndAt          *time.Time
	Page           pagination.Pagination
}

type Repository interface {
	// InsertIfAbsent reports false when a sale with the same external
	// transaction id already exists in the organization.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, sale *Sale) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Sale, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID string) (*Sale, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Sale, error)
	// TransitionStatus moves a sale into to when it currently holds one of
	// from and reports the affected row count. Zero means it did not.
	TransitionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []Status, to Status, soldAt *time.Time, now time.Time) (int64, error)
	SetCommissionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status CommissionStatus, now time.Time) error
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Sale, error)
	CountByCommissionStatus(ctx context.Context, db *gorm.DB, statuses []CommissionStatus) (map[CommissionStatus]int64, error)
}
