package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/option"
	"gorm.io/gorm"
)

const transactionColumns = `id, org_id, user_id, amount, currency, source, related_sale_id,
	referral_link_id, level, rate_percent, description, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.CommissionTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commission_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.OrgID,
		item.UserID,
		item.Amount,
		item.Currency,
		string(item.Source),
		item.RelatedSaleID,
		item.ReferralLinkID,
		item.Level,
		item.RatePercent,
		item.Description,
		item.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CommissionTransaction, error) {
	var item domain.CommissionTransaction
	if err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM commission_transactions WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.CommissionTransaction, error) {
	stmt := db.WithContext(ctx).Model(&domain.CommissionTransaction{}).Where("org_id = ?", filter.OrgID)
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.ReferralLinkID != nil {
		stmt = stmt.Where("referral_link_id = ?", *filter.ReferralLinkID)
	}
	if filter.RelatedSaleID != nil {
		stmt = stmt.Where("related_sale_id = ?", *filter.RelatedSaleID)
	}
	if filter.Source != "" {
		stmt = stmt.Where("source = ?", string(filter.Source))
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at < ?", filter.EndAt.UTC())
	}
	stmt = option.ApplyPagination(filter.Page).Apply(stmt)
	stmt = option.WithOrder("id desc").Apply(stmt)

	var items []*domain.CommissionTransaction
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountBySale(ctx context.Context, db *gorm.DB, orgID, saleID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM commission_transactions
		 WHERE org_id = ? AND related_sale_id = ? AND source <> 'manual'`,
		orgID, saleID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) SaleExists(ctx context.Context, db *gorm.DB, orgID, saleID snowflake.ID) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM sales WHERE org_id = ? AND id = ?`,
		orgID, saleID,
	).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
