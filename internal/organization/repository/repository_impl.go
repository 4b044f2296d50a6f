package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

// CreateOrganization reports false when the slug is already taken.
func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, is_default, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO NOTHING`,
		org.ID,
		org.Name,
		org.Slug,
		org.IsDefault,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return r.findOne(ctx,
		`SELECT id, name, slug, is_default, created_at, updated_at
		 FROM organizations WHERE id = ?`,
		id,
	)
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.findOne(ctx,
		`SELECT id, name, slug, is_default, created_at, updated_at
		 FROM organizations WHERE slug = ?`,
		slug,
	)
}

func (r *repository) FindDefault(ctx context.Context) (*domain.Organization, error) {
	return r.findOne(ctx,
		`SELECT id, name, slug, is_default, created_at, updated_at
		 FROM organizations WHERE is_default = ?
		 ORDER BY id ASC LIMIT 1`,
		true,
	)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&org).Error; err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}
