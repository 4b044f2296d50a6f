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
	OrgID      snowflake.ID
	Role       Role
	IsBigBoss  *bool
	ReferredBy *snowflake.ID
	Page       pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email string) (*User, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*User, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*User, error)
	UpdateReferrer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, referredBy *snowflake.ID, now time.Time) (int64, error)
	UpdateBigBoss(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, enabled bool, pct decimal.Decimal, now time.Time) (int64, error)
	UpdatePasswordHash(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, hash string, now time.Time) error
}
