package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	"github.com/smallbiznis/nodeboss/internal/referral/domain"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxCodeAttempts = 5
	maxTargetLength = 128
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	UserRepo userdomain.Repository
	Policy   *config.PolicyHolder `optional:"true"`
	AuditSvc auditdomain.Service  `optional:"true"`
	Clock    clock.Clock          `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	userRepo userdomain.Repository
	policy   *config.PolicyHolder
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("referral.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		policy:   p.Policy,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateLinkRequest) (*domain.ReferralLink, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	ownerID, err := parseID(req.OwnerUserID)
	if err != nil {
		return nil, domain.ErrInvalidOwner
	}

	targetType := strings.ToLower(strings.TrimSpace(req.TargetType))
	targetID := strings.TrimSpace(req.TargetID)
	if targetType == "" || targetID == "" || len(targetType) > maxTargetLength || len(targetID) > maxTargetLength {
		return nil, domain.ErrInvalidTarget
	}

	pct := s.policy.Get().DefaultLinkPercentage
	if req.CommissionPercentage != nil {
		pct = *req.CommissionPercentage
	}
	if !validPercentage(pct) {
		return nil, domain.ErrInvalidPercentage
	}

	owner, err := s.userRepo.FindByID(ctx, s.db, orgID, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, domain.ErrOwnerNotFound
	}

	now := s.clock.Now().UTC()
	link := &domain.ReferralLink{
		ID:                   s.genID.Generate(),
		OrgID:                orgID,
		OwnerUserID:          owner.ID,
		TargetType:           targetType,
		TargetID:             targetID,
		CommissionPercentage: pct,
		Status:               domain.LinkStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	// Codes carry a random suffix; retry the rare collision with a fresh one.
	for attempt := 1; ; attempt++ {
		link.Code = userdomain.NewReferralCode(owner.Name)
		err = s.repo.Insert(ctx, s.db, link)
		if err == nil {
			break
		}
		if !db.DuplicateKeyOn(err, "code") || attempt >= maxCodeAttempts {
			return nil, err
		}
	}

	s.log.Info("referral link created",
		zap.String("link_id", link.ID.String()),
		zap.String("owner_user_id", owner.ID.String()),
		zap.String("target_type", targetType),
		zap.String("commission_percentage", pct.String()),
	)
	return link, nil
}

// Resolve maps a code to its active link and owner. Without an organization
// on the context the lookup spans tenants, which serves public visit URLs.
func (s *Service) Resolve(ctx context.Context, code string) (*domain.Resolution, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	link, err := s.repo.FindByCode(ctx, s.db, orgID, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}
	if !link.IsActive() {
		return nil, domain.ErrInactiveLink
	}

	owner, err := s.userRepo.FindByID(ctx, s.db, link.OrgID, link.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, domain.ErrNotFound
	}

	return &domain.Resolution{
		Link: *link,
		Owner: domain.Owner{
			ID:           owner.ID,
			Name:         owner.Name,
			ReferralCode: owner.ReferralCode,
		},
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.ReferralLink, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	linkID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidLink
	}
	link, err := s.repo.FindByID(ctx, s.db, orgID, linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}
	return link, nil
}

func (s *Service) List(ctx context.Context, req domain.ListLinkRequest) (domain.ListLinkResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListLinkResponse{}, domain.ErrInvalidOrganization
	}
	if _, err := pagination.CursorID(req.PageToken); err != nil {
		return domain.ListLinkResponse{}, domain.ErrInvalidPageToken
	}

	filter := domain.ListFilter{
		OrgID:      orgID,
		TargetType: strings.ToLower(strings.TrimSpace(req.TargetType)),
		Page:       req.Pagination,
	}
	if strings.TrimSpace(req.OwnerUserID) != "" {
		ownerID, err := parseID(req.OwnerUserID)
		if err != nil {
			return domain.ListLinkResponse{}, domain.ErrInvalidOwner
		}
		filter.OwnerUserID = &ownerID
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if !ok {
			return domain.ListLinkResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListLinkResponse{}, err
	}

	pageSize := int32(pagination.NormalizePageSize(req.PageSize))
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(l *domain.ReferralLink) string {
		return pagination.IDToken(l.ID)
	})
	items = pagination.Trim(items, pageSize)

	links := make([]domain.ReferralLink, 0, len(items))
	for _, item := range items {
		links = append(links, *item)
	}
	return domain.ListLinkResponse{PageInfo: *pageInfo, Links: links}, nil
}

func (s *Service) SetStatus(ctx context.Context, id string, status string) (*domain.ReferralLink, error) {
	next, ok := domain.ParseStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	link, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.Status == next {
		return link, nil
	}

	previous := link.Status
	now := s.clock.Now().UTC()
	if _, err := s.repo.UpdateStatus(ctx, s.db, link.OrgID, link.ID, next, now); err != nil {
		return nil, err
	}
	link.Status = next
	link.UpdatedAt = now

	s.audit(ctx, link, auditdomain.ActionReferralLinkStatus, map[string]any{
		"previous_status": string(previous),
		"status":          string(next),
	})
	return link, nil
}

// UpdatePercentage changes the rate for sales completed from now on. Settled
// commission rows keep the rate they were computed with.
func (s *Service) UpdatePercentage(ctx context.Context, id string, pct decimal.Decimal) (*domain.ReferralLink, error) {
	if !validPercentage(pct) {
		return nil, domain.ErrInvalidPercentage
	}
	link, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.CommissionPercentage.Equal(pct) {
		return link, nil
	}

	previous := link.CommissionPercentage
	now := s.clock.Now().UTC()
	if _, err := s.repo.UpdatePercentage(ctx, s.db, link.OrgID, link.ID, pct, now); err != nil {
		return nil, err
	}
	link.CommissionPercentage = pct
	link.UpdatedAt = now

	s.audit(ctx, link, auditdomain.ActionReferralLinkPercentage, map[string]any{
		"previous_commission_percentage": previous.String(),
		"commission_percentage":          pct.String(),
	})
	return link, nil
}

func (s *Service) audit(ctx context.Context, link *domain.ReferralLink, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      link.OrgID,
		Action:     action,
		TargetType: auditdomain.TargetReferralLink,
		TargetID:   link.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func validPercentage(pct decimal.Decimal) bool {
	return !pct.IsNegative() && !pct.GreaterThan(hundred)
}

func normalizeCode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidLink
	}
	return id, nil
}
