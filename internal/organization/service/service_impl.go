package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		db:    p.DB,
		log:   log.Named("organization.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: clk,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	orgSlug := slug.Make(name)
	if orgSlug == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      orgSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.WithTx(s.db).CreateOrganization(ctx, org)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, domain.ErrSlugTaken
	}

	s.log.Info("organization created", zap.String("org_id", org.ID.String()), zap.String("slug", org.Slug))
	return toResponse(org), nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return nil, domain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.WithTx(s.db).FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return toResponse(*org), nil
}

// EnsureDefault returns the default tenant, creating it on first boot.
func (s *service) EnsureDefault(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	var result *domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindDefault(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		now := s.clock.Now().UTC()
		org := domain.Organization{
			ID:        s.genID.Generate(),
			Name:      name,
			Slug:      slug.Make(name),
			IsDefault: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		result, err = repo.FindBySlug(ctx, org.Slug)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrNotFound
	}
	return result, nil
}

func toResponse(org domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		IsDefault: org.IsDefault,
		CreatedAt: org.CreatedAt,
	}
}
