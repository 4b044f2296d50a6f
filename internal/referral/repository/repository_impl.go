package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/option"
	"gorm.io/gorm"
)

const linkColumns = `id, org_id, owner_user_id, code, target_type, target_id,
	commission_percentage, status, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, link *domain.ReferralLink) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_links (`+linkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.OrgID,
		link.OwnerUserID,
		link.Code,
		link.TargetType,
		link.TargetID,
		link.CommissionPercentage,
		string(link.Status),
		link.CreatedAt,
		link.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.ReferralLink, error) {
	var item domain.ReferralLink
	if err := db.WithContext(ctx).Raw(
		`SELECT `+linkColumns+` FROM referral_links WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*domain.ReferralLink, error) {
	query := `SELECT ` + linkColumns + ` FROM referral_links WHERE code = ?`
	args := []any{code}
	if orgID != 0 {
		query += ` AND org_id = ?`
		args = append(args, orgID)
	}

	var item domain.ReferralLink
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.ReferralLink, error) {
	stmt := db.WithContext(ctx).Model(&domain.ReferralLink{}).Where("org_id = ?", filter.OrgID)
	if filter.OwnerUserID != nil {
		stmt = stmt.Where("owner_user_id = ?", *filter.OwnerUserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", string(filter.Status))
	}
	if targetType := strings.TrimSpace(filter.TargetType); targetType != "" {
		stmt = stmt.Where("target_type = ?", targetType)
	}
	stmt = option.ApplyPagination(filter.Page).Apply(stmt)
	stmt = option.WithOrder("id desc").Apply(stmt)

	var items []*domain.ReferralLink
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status domain.LinkStatus, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referral_links SET status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		string(status), now, orgID, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdatePercentage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, pct decimal.Decimal, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referral_links SET commission_percentage = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		pct, now, orgID, id,
	)
	return res.RowsAffected, res.Error
}
