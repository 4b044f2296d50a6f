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
	UserID         *snowflake.ID
	ReferralLinkID *snowflake.ID
	RelatedSaleID  *snowflake.ID
	Source         Source
	StartAt        *time.Time
	EndAt          *time.Time
	Page           pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *CommissionTransaction) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CommissionTransaction, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*CommissionTransaction, error)
	CountBySale(ctx context.Context, db *gorm.DB, orgID, saleID snowflake.ID) (int64, error)
	SaleExists(ctx context.Context, db *gorm.DB, orgID, saleID snowflake.ID) (bool, error)
}
