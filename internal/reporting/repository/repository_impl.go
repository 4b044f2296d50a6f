package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/reporting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LinkSales(ctx context.Context, db *gorm.DB, orgID, linkID snowflake.ID) ([]domain.SalesRow, error) {
	var rows []domain.SalesRow
	err := db.WithContext(ctx).Raw(
		`SELECT currency, COUNT(1) AS count, COALESCE(SUM(amount_invested), 0) AS amount
		 FROM sales
		 WHERE org_id = ? AND referral_link_id = ? AND status = 'completed'
		 GROUP BY currency`,
		orgID, linkID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) LinkCommissions(ctx context.Context, db *gorm.DB, orgID, linkID snowflake.ID) ([]domain.CommissionRow, error) {
	var rows []domain.CommissionRow
	err := db.WithContext(ctx).Raw(
		`SELECT ct.currency AS currency, ct.source AS source, COALESCE(SUM(ct.amount), 0) AS amount
		 FROM commission_transactions ct
		 JOIN sales s ON s.id = ct.related_sale_id
		 WHERE s.org_id = ? AND s.referral_link_id = ? AND s.status = 'completed'
		 GROUP BY ct.currency, ct.source`,
		orgID, linkID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) CountLinksOwned(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM referral_links WHERE org_id = ? AND owner_user_id = ?`,
		orgID, userID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) OwnedLinkSales(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) ([]domain.SalesRow, error) {
	var rows []domain.SalesRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.currency AS currency, COUNT(1) AS count, COALESCE(SUM(s.amount_invested), 0) AS amount
		 FROM sales s
		 JOIN referral_links l ON l.id = s.referral_link_id
		 WHERE s.org_id = ? AND l.owner_user_id = ? AND s.status = 'completed'
		 GROUP BY s.currency`,
		orgID, userID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) DownlineSales(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, maxDepth int) ([]domain.SalesRow, error) {
	var rows []domain.SalesRow
	err := db.WithContext(ctx).Raw(
		`WITH RECURSIVE downline (id, depth) AS (
			SELECT id, 1 FROM users WHERE org_id = ? AND referred_by = ?
			UNION
			SELECT u.id, d.depth + 1
			FROM users u
			JOIN downline d ON u.referred_by = d.id
			WHERE u.org_id = ? AND d.depth < ?
		)
		SELECT s.currency AS currency, COUNT(1) AS count, COALESCE(SUM(s.amount_invested), 0) AS amount
		FROM sales s
		JOIN referral_links l ON l.id = s.referral_link_id
		WHERE s.org_id = ? AND s.status = 'completed'
		  AND l.owner_user_id IN (SELECT id FROM downline)
		GROUP BY s.currency`,
		orgID, userID, orgID, maxDepth, orgID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) UserCommissions(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) ([]domain.CommissionRow, error) {
	var rows []domain.CommissionRow
	err := db.WithContext(ctx).Raw(
		`SELECT currency, source, COALESCE(SUM(amount), 0) AS amount
		 FROM commission_transactions
		 WHERE org_id = ? AND user_id = ?
		 GROUP BY currency, source`,
		orgID, userID,
	).Scan(&rows).Error
	return rows, err
}
