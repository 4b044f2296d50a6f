package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/clock"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	"github.com/smallbiznis/nodeboss/internal/providers/pdf"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/internal/reporting/domain"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// maxDownlineDepth bounds the recursive downline walk.
	maxDownlineDepth      = 32
	statementTransactions = 25
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Repo           domain.Repository
	LinkRepo       referraldomain.Repository
	UserRepo       userdomain.Repository
	CommissionRepo commissiondomain.Repository
	PDF            pdf.Provider `optional:"true"`
	Clock          clock.Clock  `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	repo           domain.Repository
	linkRepo       referraldomain.Repository
	userRepo       userdomain.Repository
	commissionRepo commissiondomain.Repository
	pdf            pdf.Provider
	clock          clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("reporting.service"),
		repo:           p.Repo,
		linkRepo:       p.LinkRepo,
		userRepo:       p.UserRepo,
		commissionRepo: p.CommissionRepo,
		pdf:            p.PDF,
		clock:          clk,
	}
}

func (s *Service) LinkSummary(ctx context.Context, linkID string) (*domain.LinkSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(linkID)
	if err != nil {
		return nil, domain.ErrInvalidLink
	}

	var summary *domain.LinkSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link, err := s.linkRepo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if link == nil {
			return domain.ErrLinkNotFound
		}
		sales, err := s.repo.LinkSales(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		commissions, err := s.repo.LinkCommissions(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		summary = &domain.LinkSummary{
			LinkID:      link.ID,
			OwnerUserID: link.OwnerUserID,
			Code:        link.Code,
			Totals:      mergeLinkTotals(sales, commissions),
		}
		return nil
	}, s.readTxOptions())
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) UserSummary(ctx context.Context, userID string) (*domain.UserSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	var summary *domain.UserSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		summary, err = s.userSummary(ctx, tx, orgID, id)
		return err
	}, s.readTxOptions())
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) userSummary(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID) (*domain.UserSummary, error) {
	user, err := s.userRepo.FindByID(ctx, tx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	links, err := s.repo.CountLinksOwned(ctx, tx, orgID, userID)
	if err != nil {
		return nil, err
	}
	owned, err := s.repo.OwnedLinkSales(ctx, tx, orgID, userID)
	if err != nil {
		return nil, err
	}
	downline, err := s.repo.DownlineSales(ctx, tx, orgID, userID, maxDownlineDepth)
	if err != nil {
		return nil, err
	}
	commissions, err := s.repo.UserCommissions(ctx, tx, orgID, userID)
	if err != nil {
		return nil, err
	}
	return &domain.UserSummary{
		UserID:     user.ID,
		Name:       user.Name,
		LinksOwned: links,
		Totals:     mergeUserTotals(owned, downline, commissions),
	}, nil
}

func (s *Service) Statement(ctx context.Context, userID string) ([]byte, error) {
	if s.pdf == nil {
		return nil, domain.ErrStatementDisabled
	}
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	var (
		user    *userdomain.User
		summary *domain.UserSummary
		recent  []*commissiondomain.CommissionTransaction
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if summary, err = s.userSummary(ctx, tx, orgID, id); err != nil {
			return err
		}
		if user, err = s.userRepo.FindByID(ctx, tx, orgID, id); err != nil {
			return err
		}
		recent, err = s.commissionRepo.List(ctx, tx, commissiondomain.ListFilter{
			OrgID:  orgID,
			UserID: &id,
			Page:   pagination.Pagination{PageSize: statementTransactions},
		})
		return err
	}, s.readTxOptions())
	if err != nil {
		return nil, err
	}
	recent = pagination.Trim(recent, statementTransactions)

	data := pdf.StatementData{
		EarnerName:   user.Name,
		EarnerEmail:  user.Email,
		ReferralCode: user.ReferralCode,
		GeneratedAt:  s.clock.Now().UTC().Format("2006-01-02 15:04 MST"),
		LinksOwned:   strconv.FormatInt(summary.LinksOwned, 10),
	}
	for _, total := range summary.Totals {
		data.Totals = append(data.Totals, pdf.StatementTotal{
			Currency:      total.Currency,
			SalesAmount:   formatMoney(total.SalesAmount, total.Currency),
			Direct:        formatMoney(total.DirectAmount, total.Currency),
			Override:      formatMoney(total.OverrideAmount, total.Currency),
			Adjustments:   formatMoney(total.AdjustmentAmount, total.Currency),
			TotalEarnings: formatMoney(total.TotalEarnings, total.Currency),
		})
	}
	for _, item := range recent {
		description := ""
		if item.Description != nil {
			description = *item.Description
		}
		data.Transactions = append(data.Transactions, pdf.StatementLine{
			Date:        item.CreatedAt.UTC().Format("2006-01-02"),
			Source:      string(item.Source),
			Description: description,
			Amount:      formatMoney(item.Amount, item.Currency),
		})
	}

	reader, err := s.pdf.GenerateStatement(ctx, data)
	if err != nil {
		s.log.Error("failed to render statement", zap.String("user_id", id.String()), zap.Error(err))
		return nil, err
	}
	if reader == nil {
		return nil, domain.ErrStatementDisabled
	}
	return io.ReadAll(reader)
}

// readTxOptions keeps every aggregate of one summary on the same snapshot.
func (s *Service) readTxOptions() *sql.TxOptions {
	if db.SupportsIsolation(s.db) {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func mergeLinkTotals(sales []domain.SalesRow, commissions []domain.CommissionRow) []domain.LinkTotals {
	byCurrency := map[string]*domain.LinkTotals{}
	get := func(currency string) *domain.LinkTotals {
		if t, ok := byCurrency[currency]; ok {
			return t
		}
		t := &domain.LinkTotals{Currency: currency}
		byCurrency[currency] = t
		return t
	}
	for _, row := range sales {
		t := get(row.Currency)
		t.CompletedSales += row.Count
		t.SalesAmount += row.Amount
	}
	for _, row := range commissions {
		t := get(row.Currency)
		switch commissiondomain.Source(row.Source) {
		case commissiondomain.SourceReferralSale:
			t.DirectAmount += row.Amount
		case commissiondomain.SourceOverride:
			t.OverrideAmount += row.Amount
		case commissiondomain.SourceManual:
			t.AdjustmentAmount += row.Amount
		}
		t.CommissionAmount += row.Amount
	}

	out := make([]domain.LinkTotals, 0, len(byCurrency))
	for _, t := range byCurrency {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func mergeUserTotals(owned, downline []domain.SalesRow, commissions []domain.CommissionRow) []domain.UserTotals {
	byCurrency := map[string]*domain.UserTotals{}
	get := func(currency string) *domain.UserTotals {
		if t, ok := byCurrency[currency]; ok {
			return t
		}
		t := &domain.UserTotals{Currency: currency}
		byCurrency[currency] = t
		return t
	}
	for _, row := range owned {
		t := get(row.Currency)
		t.CompletedSales += row.Count
		t.SalesAmount += row.Amount
	}
	for _, row := range downline {
		t := get(row.Currency)
		t.DownlineSales += row.Count
		t.DownlineSalesAmount += row.Amount
	}
	for _, row := range commissions {
		t := get(row.Currency)
		switch commissiondomain.Source(row.Source) {
		case commissiondomain.SourceReferralSale:
			t.DirectAmount += row.Amount
		case commissiondomain.SourceOverride:
			t.OverrideAmount += row.Amount
		case commissiondomain.SourceManual:
			t.AdjustmentAmount += row.Amount
		}
		t.TotalEarnings += row.Amount
	}

	out := make([]domain.UserTotals, 0, len(byCurrency))
	for _, t := range byCurrency {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// formatMoney renders minor units with two decimal places.
func formatMoney(amount int64, currency string) string {
	return strings.TrimSpace(currency + " " + decimal.New(amount, -2).StringFixed(2))
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("invalid_id")
	}
	return id, nil
}
