package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	ledgerdomain "github.com/smallbiznis/nodeboss/internal/ledger/domain"
	"github.com/smallbiznis/nodeboss/internal/observability/metrics"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	LinkRepo  referraldomain.Repository
	UserRepo  userdomain.Repository
	UserSvc   userdomain.Service
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
	Clock     clock.Clock         `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	linkRepo  referraldomain.Repository
	userRepo  userdomain.Repository
	userSvc   userdomain.Service
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	clock     clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("commission.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		linkRepo:  p.LinkRepo,
		userRepo:  p.UserRepo,
		userSvc:   p.UserSvc,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		clock:     clk,
	}
}

// Settle re-reads the link and hierarchy through tx so the plan reflects the
// configuration at completion time.
func (s *Service) Settle(ctx context.Context, tx *gorm.DB, sale domain.SaleRef, policy config.Policy) (domain.Plan, error) {
	if sale.OrgID == 0 || sale.ID == 0 {
		return domain.Plan{}, domain.ErrInvalidSale
	}
	if sale.AmountInvested == 0 {
		return domain.Plan{}, nil
	}

	link, err := s.linkRepo.FindByID(ctx, tx, sale.OrgID, sale.ReferralLinkID)
	if err != nil {
		return domain.Plan{}, err
	}
	if link == nil {
		return domain.Plan{}, fmt.Errorf("%w: referral link %s missing", domain.ErrReconciliationRequired, sale.ReferralLinkID)
	}
	owner, err := s.userRepo.FindByID(ctx, tx, sale.OrgID, link.OwnerUserID)
	if err != nil {
		return domain.Plan{}, err
	}
	if owner == nil {
		return domain.Plan{}, fmt.Errorf("%w: link owner %s missing", domain.ErrReconciliationRequired, link.OwnerUserID)
	}

	ancestors, err := s.userSvc.Ancestors(ctx, tx, sale.OrgID, owner.ID, policy.MaxOverrideDepth)
	if err != nil {
		if errors.Is(err, userdomain.ErrReferralCycle) {
			return domain.Plan{}, fmt.Errorf("%w: %v", domain.ErrReconciliationRequired, err)
		}
		return domain.Plan{}, err
	}

	input := domain.CalculationInput{
		Amount: sale.AmountInvested,
		Owner: domain.Earner{
			UserID:     owner.ID,
			IsBigBoss:  owner.IsBigBoss,
			Percentage: link.CommissionPercentage,
		},
		Ancestors: make([]domain.Earner, 0, len(ancestors)),
	}
	for _, ancestor := range ancestors {
		input.Ancestors = append(input.Ancestors, domain.Earner{
			UserID:     ancestor.ID,
			IsBigBoss:  ancestor.EligibleForOverride(),
			Percentage: ancestor.OverridePercentage,
		})
	}

	plan, calcErr := domain.Calculate(input, policy)
	if calcErr != nil && !errors.Is(calcErr, domain.ErrPayoutLimitExceeded) {
		return domain.Plan{}, fmt.Errorf("%w: %v", domain.ErrReconciliationRequired, calcErr)
	}

	now := s.clock.Now().UTC()
	saleID := sale.ID
	linkID := link.ID
	for _, line := range plan.Lines {
		description := describe(line, sale.ID)
		item := &domain.CommissionTransaction{
			ID:             s.genID.Generate(),
			OrgID:          sale.OrgID,
			UserID:         line.UserID,
			Amount:         line.Amount,
			Currency:       sale.Currency,
			Source:         line.Source,
			RelatedSaleID:  &saleID,
			ReferralLinkID: &linkID,
			Level:          line.Level,
			RatePercent:    line.RatePercent,
			Description:    &description,
			CreatedAt:      now,
		}
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.Plan{}, domain.ErrDuplicateTransaction
			}
			return domain.Plan{}, err
		}
	}

	occurredAt := sale.SoldAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	if _, err := s.ledgerSvc.PostCommissionTx(ctx, tx, sale.OrgID, ledgerdomain.SourceTypeSaleCommission, sale.ID, sale.Currency, occurredAt, plan.Total); err != nil {
		return domain.Plan{}, err
	}

	return plan, calcErr
}

func (s *Service) CreateAdjustment(ctx context.Context, req domain.CreateAdjustmentRequest) (*domain.CommissionTransaction, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}
	if req.Amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	var relatedSaleID *snowflake.ID
	if strings.TrimSpace(req.RelatedSaleID) != "" {
		saleID, err := parseID(req.RelatedSaleID)
		if err != nil {
			return nil, domain.ErrInvalidSale
		}
		relatedSaleID = &saleID
	}

	var description *string
	if trimmed := strings.TrimSpace(req.Description); trimmed != "" {
		description = &trimmed
	}

	now := s.clock.Now().UTC()
	item := &domain.CommissionTransaction{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		UserID:        userID,
		Amount:        req.Amount,
		Currency:      currency,
		Source:        domain.SourceManual,
		RelatedSaleID: relatedSaleID,
		Description:   description,
		CreatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.FindByID(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		if relatedSaleID != nil {
			exists, err := s.repo.SaleExists(ctx, tx, orgID, *relatedSaleID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrSaleNotFound
			}
		}
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			return err
		}
		_, err = s.ledgerSvc.PostCommissionTx(ctx, tx, orgID, ledgerdomain.SourceTypeCommissionAdjustment, item.ID, currency, now, item.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCommission(ctx, string(domain.SourceManual), currency, item.Amount)
	s.metrics.RecordLedgerEntry(ctx, string(ledgerdomain.SourceTypeCommissionAdjustment))

	if s.auditSvc != nil {
		targetID := item.ID.String()
		metadata := map[string]any{
			"user_id":  userID.String(),
			"amount":   item.Amount,
			"currency": currency,
		}
		if relatedSaleID != nil {
			metadata["related_sale_id"] = relatedSaleID.String()
		}
		entry := auditdomain.Entry{
			OrgID:      orgID,
			Action:     auditdomain.ActionAdjustmentCreated,
			TargetType: auditdomain.TargetCommissionTransaction,
			TargetID:   targetID,
			Metadata:   metadata,
		}
		if err := s.auditSvc.Record(ctx, entry); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", auditdomain.ActionAdjustmentCreated), zap.Error(err))
		}
	}

	s.log.Info("commission adjustment created",
		zap.String("transaction_id", item.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("amount", item.Amount),
		zap.String("currency", currency),
	)
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.CommissionTransaction, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	txID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidTransaction
	}
	item, err := s.repo.FindByID(ctx, s.db, orgID, txID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCommissionRequest) (domain.ListCommissionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListCommissionResponse{}, domain.ErrInvalidOrganization
	}
	if _, err := pagination.CursorID(req.PageToken); err != nil {
		return domain.ListCommissionResponse{}, domain.ErrInvalidPageToken
	}
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return domain.ListCommissionResponse{}, domain.ErrInvalidTimeRange
	}

	filter := domain.ListFilter{
		OrgID:   orgID,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Page:    req.Pagination,
	}
	var err error
	if filter.UserID, err = optionalID(req.UserID, domain.ErrInvalidUser); err != nil {
		return domain.ListCommissionResponse{}, err
	}
	if filter.ReferralLinkID, err = optionalID(req.ReferralLinkID, domain.ErrInvalidLink); err != nil {
		return domain.ListCommissionResponse{}, err
	}
	if filter.RelatedSaleID, err = optionalID(req.RelatedSaleID, domain.ErrInvalidSale); err != nil {
		return domain.ListCommissionResponse{}, err
	}
	if raw := strings.ToLower(strings.TrimSpace(req.Source)); raw != "" {
		source, ok := domain.ParseSource(raw)
		if !ok {
			return domain.ListCommissionResponse{}, domain.ErrInvalidSource
		}
		filter.Source = source
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListCommissionResponse{}, err
	}

	pageSize := int32(pagination.NormalizePageSize(req.PageSize))
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(c *domain.CommissionTransaction) string {
		return pagination.IDToken(c.ID)
	})
	items = pagination.Trim(items, pageSize)

	out := make([]domain.CommissionTransaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListCommissionResponse{PageInfo: *pageInfo, Transactions: out}, nil
}

func describe(line domain.PlanLine, saleID snowflake.ID) string {
	if line.Source == domain.SourceOverride {
		return fmt.Sprintf("override level %d on sale %s", line.Level, saleID)
	}
	return fmt.Sprintf("direct commission on sale %s", saleID)
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}

func optionalID(raw string, invalid error) (*snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, invalid
	}
	return &id, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidTransaction
	}
	return id, nil
}
