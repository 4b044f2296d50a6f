package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/sale/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/option"
	"gorm.io/gorm"
)

const saleColumns = `id, org_id, referral_link_id, buyer_user_id, amount_invested, currency,
	status, commission_status, external_transaction_id, sold_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, sale *domain.Sale) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO sales (`+saleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, external_transaction_id) DO NOTHING`,
		sale.ID,
		sale.OrgID,
		sale.ReferralLinkID,
		sale.BuyerUserID,
		sale.AmountInvested,
		sale.Currency,
		string(sale.Status),
		string(sale.CommissionStatus),
		sale.ExternalTransactionID,
		sale.SoldAt,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Sale, error) {
	return r.findOne(ctx, db, `org_id = ? AND id = ?`, orgID, id)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID string) (*domain.Sale, error) {
	return r.findOne(ctx, db, `org_id = ? AND external_transaction_id = ?`, orgID, externalID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Sale, error) {
	var item domain.Sale
	if err := db.WithContext(ctx).Raw(
		`SELECT `+saleColumns+` FROM sales WHERE `+where,
		args...,
	).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Sale, error) {
	stmt := db.WithContext(ctx).Model(&domain.Sale{}).Where("org_id = ?", filter.OrgID)
	if filter.ReferralLinkID != nil {
		stmt = stmt.Where("referral_link_id = ?", *filter.ReferralLinkID)
	}
	if filter.BuyerUserID != nil {
		stmt = stmt.Where("buyer_user_id = ?", *filter.BuyerUserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", string(filter.Status))
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at < ?", filter.EndAt.UTC())
	}
	stmt = option.ApplyPagination(filter.Page).Apply(stmt)
	stmt = option.WithOrder("id desc").Apply(stmt)

	var items []*domain.Sale
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []domain.Status, to domain.Status, soldAt *time.Time, now time.Time) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	fromRaw := make([]string, 0, len(from))
	for _, status := range from {
		fromRaw = append(fromRaw, string(status))
	}

	var result *gorm.DB
	if soldAt != nil {
		result = db.WithContext(ctx).Exec(
			`UPDATE sales SET status = ?, sold_at = ?, updated_at = ?
			 WHERE org_id = ? AND id = ? AND status IN ?`,
			string(to), soldAt.UTC(), now, orgID, id, fromRaw,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE sales SET status = ?, updated_at = ?
			 WHERE org_id = ? AND id = ? AND status IN ?`,
			string(to), now, orgID, id, fromRaw,
		)
	}
	return result.RowsAffected, result.Error
}

func (r *repo) SetCommissionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status domain.CommissionStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sales SET commission_status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		string(status), now, orgID, id,
	).Error
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Sale, error) {
	var items []*domain.Sale
	err := db.WithContext(ctx).Raw(
		`SELECT `+saleColumns+` FROM sales
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		string(domain.StatusPending), before.UTC(), limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) CountByCommissionStatus(ctx context.Context, db *gorm.DB, statuses []domain.CommissionStatus) (map[domain.CommissionStatus]int64, error) {
	counts := make(map[domain.CommissionStatus]int64, len(statuses))
	if len(statuses) == 0 {
		return counts, nil
	}
	raw := make([]string, 0, len(statuses))
	for _, status := range statuses {
		raw = append(raw, string(status))
		counts[status] = 0
	}

	var rows []struct {
		CommissionStatus string
		Total            int64
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT commission_status, COUNT(1) AS total FROM sales
		 WHERE status = ? AND commission_status IN ?
		 GROUP BY commission_status`,
		string(domain.StatusCompleted), raw,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[domain.CommissionStatus(row.CommissionStatus)] = row.Total
	}
	return counts, nil
}
