package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/clock"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	ledgerdomain "github.com/smallbiznis/nodeboss/internal/ledger/domain"
	"github.com/smallbiznis/nodeboss/internal/observability/metrics"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/internal/sale/domain"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxExternalIDLength = 255

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	ReferralSvc   referraldomain.Service
	LinkRepo      referraldomain.Repository
	UserRepo      userdomain.Repository
	CommissionSvc commissiondomain.Service
	Policy        *config.PolicyHolder `optional:"true"`
	AuditSvc      auditdomain.Service  `optional:"true"`
	Metrics       *metrics.Metrics     `optional:"true"`
	Clock         clock.Clock          `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	referralSvc   referraldomain.Service
	linkRepo      referraldomain.Repository
	userRepo      userdomain.Repository
	commissionSvc commissiondomain.Service
	policy        *config.PolicyHolder
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
	clock         clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("sale.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		referralSvc:   p.ReferralSvc,
		linkRepo:      p.LinkRepo,
		userRepo:      p.UserRepo,
		commissionSvc: p.CommissionSvc,
		policy:        p.Policy,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
		clock:         clk,
	}
}

// CreatePending records a sale at payment-intent time. Repeating the call
// for the same external transaction id returns the stored sale.
func (s *Service) CreatePending(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	sale, _, err := s.findOrCreatePending(ctx, orgID, req, s.policy.Get())
	return sale, err
}

func (s *Service) Complete(ctx context.Context, req domain.SaleRequest) (*domain.CompletionResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	// One snapshot for the whole settlement, even if the file reloads.
	policy := s.policy.Get()

	sale, _, err := s.findOrCreatePending(ctx, orgID, req, policy)
	if err != nil {
		return nil, err
	}
	switch sale.Status {
	case domain.StatusCompleted:
		return &domain.CompletionResult{Sale: sale}, commissiondomain.ErrDuplicateTransaction
	case domain.StatusFailed, domain.StatusCanceled:
		return nil, domain.ErrInvalidTransition
	}
	if err := s.matchesRecorded(ctx, orgID, sale, req); err != nil {
		return nil, err
	}
	expiredBefore := sale.Status == domain.StatusExpired

	var (
		plan      commissiondomain.Plan
		outcome   domain.CommissionStatus
		settleErr error
	)
	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.TransitionStatus(ctx, tx, orgID, sale.ID, domain.OpenStatuses, domain.StatusCompleted, &now, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			current, err := s.repo.FindByID(ctx, tx, orgID, sale.ID)
			if err != nil {
				return err
			}
			if current != nil && current.Status == domain.StatusCompleted {
				return commissiondomain.ErrDuplicateTransaction
			}
			return domain.ErrInvalidTransition
		}

		selfReferral, err := s.isSelfReferral(ctx, tx, sale)
		if err != nil {
			return err
		}
		// The policy may have changed since the pending row was recorded.
		if selfReferral && policy.SelfReferral == config.SelfReferralReject {
			return domain.ErrSelfReferral
		}

		switch {
		case selfReferral && policy.SelfReferral == config.SelfReferralNoCommission:
			outcome = domain.CommissionStatusSelfReferral
		default:
			plan, settleErr = s.commissionSvc.Settle(ctx, tx, commissiondomain.SaleRef{
				ID:             sale.ID,
				OrgID:          orgID,
				ReferralLinkID: sale.ReferralLinkID,
				AmountInvested: sale.AmountInvested,
				Currency:       sale.Currency,
				SoldAt:         now,
			}, policy)
			switch {
			case settleErr == nil:
				outcome = domain.CommissionStatusSettled
			case errors.Is(settleErr, commissiondomain.ErrPayoutLimitExceeded):
				outcome = domain.CommissionStatusCapped
			case errors.Is(settleErr, commissiondomain.ErrReconciliationRequired):
				outcome = domain.CommissionStatusPendingReconciliation
				plan = commissiondomain.Plan{}
			default:
				return settleErr
			}
		}

		return s.repo.SetCommissionStatus(ctx, tx, orgID, sale.ID, outcome, now)
	})
	if err != nil {
		if errors.Is(err, commissiondomain.ErrDuplicateTransaction) {
			current, findErr := s.repo.FindByID(ctx, s.db, orgID, sale.ID)
			if findErr != nil {
				return nil, findErr
			}
			return &domain.CompletionResult{Sale: current}, commissiondomain.ErrDuplicateTransaction
		}
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrSelfReferral) {
			return nil, err
		}
		s.log.Error("sale completion rolled back",
			zap.String("sale_id", sale.ID.String()),
			zap.String("external_transaction_id", sale.ExternalTransactionID),
			zap.Error(err),
		)
		return nil, commissiondomain.NewAtomicWriteError("complete_sale", err)
	}

	sale.Status = domain.StatusCompleted
	sale.CommissionStatus = outcome
	sale.SoldAt = &now
	sale.UpdatedAt = now

	if expiredBefore {
		s.log.Info("late payment completed expired sale",
			zap.String("sale_id", sale.ID.String()),
			zap.String("external_transaction_id", sale.ExternalTransactionID),
		)
	}
	s.afterCompletion(ctx, sale, plan, settleErr)
	return &domain.CompletionResult{Sale: sale, Plan: plan}, nil
}

func (s *Service) Fail(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	return s.finish(ctx, req, domain.StatusFailed)
}

func (s *Service) Cancel(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	return s.finish(ctx, req, domain.StatusCanceled)
}

func (s *Service) finish(ctx context.Context, req domain.SaleRequest, to domain.Status) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	externalID, err := normalizeExternalID(req.ExternalTransactionID)
	if err != nil {
		return nil, err
	}

	var sale *domain.Sale
	if req.HasLink() {
		sale, _, err = s.findOrCreatePending(ctx, orgID, req, s.policy.Get())
	} else {
		sale, err = s.repo.FindByExternalID(ctx, s.db, orgID, externalID)
		if err == nil && sale == nil {
			err = domain.ErrNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	if sale.Status == to {
		return sale, commissiondomain.ErrDuplicateTransaction
	}
	if !sale.Status.IsOpen() {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now().UTC()
	rows, err := s.repo.TransitionStatus(ctx, s.db, orgID, sale.ID, domain.OpenStatuses, to, nil, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := s.repo.FindByID(ctx, s.db, orgID, sale.ID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == to {
			return current, commissiondomain.ErrDuplicateTransaction
		}
		return nil, domain.ErrInvalidTransition
	}

	sale.Status = to
	sale.UpdatedAt = now
	s.metrics.RecordSale(ctx, string(to))
	s.log.Info("sale closed without payment",
		zap.String("sale_id", sale.ID.String()),
		zap.String("status", string(to)),
	)
	return sale, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	saleID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidSale
	}
	sale, err := s.repo.FindByID(ctx, s.db, orgID, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}
	return sale, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSaleRequest) (domain.ListSaleResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListSaleResponse{}, domain.ErrInvalidOrganization
	}
	if _, err := pagination.CursorID(req.PageToken); err != nil {
		return domain.ListSaleResponse{}, domain.ErrInvalidPageToken
	}
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return domain.ListSaleResponse{}, domain.ErrInvalidTimeRange
	}

	filter := domain.ListFilter{OrgID: orgID, StartAt: req.StartAt, EndAt: req.EndAt, Page: req.Pagination}
	if strings.TrimSpace(req.ReferralLinkID) != "" {
		linkID, err := parseID(req.ReferralLinkID)
		if err != nil {
			return domain.ListSaleResponse{}, domain.ErrInvalidLink
		}
		filter.ReferralLinkID = &linkID
	}
	if strings.TrimSpace(req.BuyerUserID) != "" {
		buyerID, err := parseID(req.BuyerUserID)
		if err != nil {
			return domain.ListSaleResponse{}, domain.ErrInvalidBuyer
		}
		filter.BuyerUserID = &buyerID
	}
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return domain.ListSaleResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListSaleResponse{}, err
	}

	pageSize := int32(pagination.NormalizePageSize(req.PageSize))
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(sale *domain.Sale) string {
		return pagination.IDToken(sale.ID)
	})
	items = pagination.Trim(items, pageSize)

	sales := make([]domain.Sale, 0, len(items))
	for _, item := range items {
		sales = append(sales, *item)
	}
	return domain.ListSaleResponse{PageInfo: *pageInfo, Sales: sales}, nil
}

// ExpirePending marks sales that stayed pending past olderThan as expired.
// Expired sales stay open: a late confirmation still completes them. It
// spans all organizations and is meant for the scheduler.
func (s *Service) ExpirePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	stale, err := s.repo.ListPendingBefore(ctx, s.db, olderThan, limit)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	expired := 0
	for _, sale := range stale {
		rows, err := s.repo.TransitionStatus(ctx, s.db, sale.OrgID, sale.ID, []domain.Status{domain.StatusPending}, domain.StatusExpired, nil, now)
		if err != nil {
			return expired, err
		}
		if rows == 0 {
			// completed or closed since it was listed
			continue
		}
		expired++
		s.metrics.RecordSale(ctx, string(domain.StatusExpired))
	}
	if expired > 0 {
		s.log.Info("expired stale pending sales", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) ReconciliationBacklog(ctx context.Context) (map[domain.CommissionStatus]int64, error) {
	return s.repo.CountByCommissionStatus(ctx, s.db, []domain.CommissionStatus{
		domain.CommissionStatusCapped,
		domain.CommissionStatusPendingReconciliation,
	})
}

// findOrCreatePending returns the sale for req's external id, inserting a
// pending row when none exists. The bool reports whether this call created it.
func (s *Service) findOrCreatePending(ctx context.Context, orgID snowflake.ID, req domain.SaleRequest, policy config.Policy) (*domain.Sale, bool, error) {
	externalID, err := normalizeExternalID(req.ExternalTransactionID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, orgID, externalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if req.Amount < 0 {
		return nil, false, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, false, err
	}
	link, err := s.resolveLink(ctx, req)
	if err != nil {
		return nil, false, err
	}

	var buyerID *snowflake.ID
	if strings.TrimSpace(req.BuyerUserID) != "" {
		id, err := parseID(req.BuyerUserID)
		if err != nil {
			return nil, false, domain.ErrInvalidBuyer
		}
		buyer, err := s.userRepo.FindByID(ctx, s.db, orgID, id)
		if err != nil {
			return nil, false, err
		}
		if buyer == nil {
			return nil, false, domain.ErrBuyerNotFound
		}
		buyerID = &id
	}
	if buyerID != nil && *buyerID == link.OwnerUserID && policy.SelfReferral == config.SelfReferralReject {
		return nil, false, domain.ErrSelfReferral
	}

	now := s.clock.Now().UTC()
	sale := &domain.Sale{
		ID:                    s.genID.Generate(),
		OrgID:                 orgID,
		ReferralLinkID:        link.ID,
		BuyerUserID:           buyerID,
		AmountInvested:        req.Amount,
		Currency:              currency,
		Status:                domain.StatusPending,
		CommissionStatus:      domain.CommissionStatusNone,
		ExternalTransactionID: externalID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, sale)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// A concurrent delivery recorded it first.
		existing, err := s.repo.FindByExternalID(ctx, s.db, orgID, externalID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
		return existing, false, nil
	}

	s.metrics.RecordSale(ctx, string(domain.StatusPending))
	s.log.Info("sale recorded",
		zap.String("sale_id", sale.ID.String()),
		zap.String("referral_link_id", link.ID.String()),
		zap.String("external_transaction_id", externalID),
		zap.Int64("amount", sale.AmountInvested),
		zap.String("currency", currency),
	)
	return sale, true, nil
}

func (s *Service) resolveLink(ctx context.Context, req domain.SaleRequest) (*referraldomain.ReferralLink, error) {
	if code := strings.ToLower(strings.TrimSpace(req.ReferralCode)); code != "" {
		resolution, err := s.referralSvc.Resolve(ctx, code)
		if err != nil {
			return nil, err
		}
		return &resolution.Link, nil
	}
	if strings.TrimSpace(req.ReferralLinkID) == "" {
		return nil, domain.ErrInvalidLink
	}
	link, err := s.referralSvc.GetByID(ctx, req.ReferralLinkID)
	if err != nil {
		return nil, err
	}
	if !link.IsActive() {
		return nil, referraldomain.ErrInactiveLink
	}
	return link, nil
}

func (s *Service) isSelfReferral(ctx context.Context, tx *gorm.DB, sale *domain.Sale) (bool, error) {
	if sale.BuyerUserID == nil {
		return false, nil
	}
	link, err := s.linkRepo.FindByID(ctx, tx, sale.OrgID, sale.ReferralLinkID)
	if err != nil {
		return false, err
	}
	return link != nil && link.OwnerUserID == *sale.BuyerUserID, nil
}

// afterCompletion emits metrics and audit rows once the settlement committed.
func (s *Service) afterCompletion(ctx context.Context, sale *domain.Sale, plan commissiondomain.Plan, settleErr error) {
	s.metrics.RecordSale(ctx, string(domain.StatusCompleted))
	for _, line := range plan.Lines {
		s.metrics.RecordCommission(ctx, string(line.Source), sale.Currency, line.Amount)
	}
	if plan.Total > 0 {
		s.metrics.RecordLedgerEntry(ctx, string(ledgerdomain.SourceTypeSaleCommission))
	}

	fields := []zap.Field{
		zap.String("sale_id", sale.ID.String()),
		zap.String("commission_status", string(sale.CommissionStatus)),
		zap.Int("commission_lines", len(plan.Lines)),
		zap.Int64("commission_total", plan.Total),
	}

	switch sale.CommissionStatus {
	case domain.CommissionStatusCapped:
		s.metrics.RecordPayoutCapped(ctx)
		s.audit(ctx, sale, auditdomain.ActionPayoutCapped, map[string]any{
			"cap":      plan.Cap,
			"uncapped": plan.Uncapped,
			"total":    plan.Total,
		})
		s.log.Warn("sale payout capped", fields...)
	case domain.CommissionStatusPendingReconciliation:
		reason := "calculation_failed"
		if settleErr != nil {
			reason = settleErr.Error()
		}
		s.metrics.RecordPendingReconciliation(ctx, "calculation_failed")
		s.audit(ctx, sale, auditdomain.ActionPendingReconciliation, map[string]any{"reason": reason})
		s.log.Warn("sale completed without commissions", append(fields, zap.Error(settleErr))...)
	case domain.CommissionStatusSelfReferral:
		s.audit(ctx, sale, auditdomain.ActionSelfReferral, map[string]any{
			"buyer_user_id": sale.BuyerUserID.String(),
		})
		s.log.Info("self-referred sale completed without commissions", fields...)
	default:
		s.log.Info("sale completed", fields...)
	}
}

func (s *Service) audit(ctx context.Context, sale *domain.Sale, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata["external_transaction_id"] = sale.ExternalTransactionID
	entry := auditdomain.Entry{
		OrgID:      sale.OrgID,
		Action:     action,
		TargetType: auditdomain.TargetSale,
		TargetID:   sale.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// matchesRecorded rejects a completion event that disagrees with the open
// sale. A zero amount with no currency means the event did not restate them.
func (s *Service) matchesRecorded(ctx context.Context, orgID snowflake.ID, sale *domain.Sale, req domain.SaleRequest) error {
	if raw := strings.TrimSpace(req.ReferralLinkID); raw != "" {
		linkID, err := parseID(raw)
		if err != nil {
			return domain.ErrInvalidLink
		}
		if linkID != sale.ReferralLinkID {
			return domain.ErrLinkMismatch
		}
	}
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		// Looked up directly so a link deactivated after checkout still matches.
		link, err := s.linkRepo.FindByCode(ctx, s.db, orgID, code)
		if err != nil {
			return err
		}
		if link == nil || link.ID != sale.ReferralLinkID {
			return domain.ErrLinkMismatch
		}
	}

	if req.Amount == 0 && strings.TrimSpace(req.Currency) == "" {
		return nil
	}
	if req.Amount != sale.AmountInvested {
		return domain.ErrAmountMismatch
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" && currency != sale.Currency {
		return domain.ErrAmountMismatch
	}
	return nil
}

func normalizeExternalID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxExternalIDLength {
		return "", domain.ErrInvalidExternalID
	}
	return id, nil
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

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidSale
	}
	return id, nil
}
