package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	LinkSales(ctx context.Context, db *gorm.DB, orgID, linkID snowflake.ID) ([]SalesRow, error)
	LinkCommissions(ctx context.Context, db *gorm.DB, orgID, linkID snowflake.ID) ([]CommissionRow, error)
	CountLinksOwned(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (int64, error)
	OwnedLinkSales(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) ([]SalesRow, error)
	// DownlineSales sums completed sales through links owned by anyone below
	// userID, at most maxDepth levels down.
	DownlineSales(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, maxDepth int) ([]SalesRow, error)
	UserCommissions(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) ([]CommissionRow, error)
}
