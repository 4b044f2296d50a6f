package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID       snowflake.ID
	OwnerUserID *snowflake.ID
	Status      LinkStatus
	TargetType  string
	Page        pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, link *ReferralLink) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ReferralLink, error)
	// FindByCode looks up a code across tenants when orgID is zero.
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*ReferralLink, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ReferralLink, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status LinkStatus, now time.Time) (int64, error)
	UpdatePercentage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, pct decimal.Decimal, now time.Time) (int64, error)
}
