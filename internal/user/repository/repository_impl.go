package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/option"
	"gorm.io/gorm"
)

const userColumns = `id, org_id, name, email, role, referral_code, referred_by,
	is_big_boss, override_percentage, password_hash, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.OrgID,
		user.Name,
		user.Email,
		string(user.Role),
		user.ReferralCode,
		user.ReferredBy,
		user.IsBigBoss,
		user.OverridePercentage,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `SELECT `+userColumns+` FROM users WHERE org_id = ? AND id = ?`, orgID, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `SELECT `+userColumns+` FROM users WHERE org_id = ? AND email = ?`, orgID, email)
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*domain.User, error) {
	return r.findOne(ctx, db, `SELECT `+userColumns+` FROM users WHERE org_id = ? AND referral_code = ?`, orgID, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.User, error) {
	var item domain.User
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.User, error) {
	stmt := db.WithContext(ctx).Model(&domain.User{}).Where("org_id = ?", filter.OrgID)
	if filter.Role != "" {
		stmt = stmt.Where("role = ?", string(filter.Role))
	}
	if filter.IsBigBoss != nil {
		stmt = stmt.Where("is_big_boss = ?", *filter.IsBigBoss)
	}
	if filter.ReferredBy != nil {
		stmt = stmt.Where("referred_by = ?", *filter.ReferredBy)
	}
	stmt = option.ApplyPagination(filter.Page).Apply(stmt)
	stmt = option.WithOrder("id desc").Apply(stmt)

	var items []*domain.User
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateReferrer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, referredBy *snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET referred_by = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		referredBy, now, orgID, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateBigBoss(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, enabled bool, pct decimal.Decimal, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET is_big_boss = ?, override_percentage = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		enabled, pct, now, orgID, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdatePasswordHash(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, hash string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		hash, now, orgID, id,
	).Error
}
