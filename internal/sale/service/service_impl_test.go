package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/clock"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	commissionrepo "github.com/smallbiznis/nodeboss/internal/commission/repository"
	commissionservice "github.com/smallbiznis/nodeboss/internal/commission/service"
	"github.com/smallbiznis/nodeboss/internal/config"
	ledgerservice "github.com/smallbiznis/nodeboss/internal/ledger/service"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	referralrepo "github.com/smallbiznis/nodeboss/internal/referral/repository"
	referralservice "github.com/smallbiznis/nodeboss/internal/referral/service"
	"github.com/smallbiznis/nodeboss/internal/sale/domain"
	"github.com/smallbiznis/nodeboss/internal/sale/repository"
	"github.com/smallbiznis/nodeboss/internal/sale/service"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	userrepo "github.com/smallbiznis/nodeboss/internal/user/repository"
	userservice "github.com/smallbiznis/nodeboss/internal/user/service"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) Record(ctx context.Context, entry auditdomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, entry.Action)
	return nil
}

func (r *recordingAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fixture struct {
	ctx         context.Context
	clock       *clock.FakeClock
	policy      *config.PolicyHolder
	audit       *recordingAudit
	users       userdomain.Service
	links       referraldomain.Service
	commissions commissiondomain.Service
	sales       domain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())
	audit := &recordingAudit{}
	log := zap.NewNop()

	uRepo := userrepo.Provide()
	lRepo := referralrepo.Provide()
	users := userservice.New(userservice.Params{DB: db, Log: log, GenID: node, Repo: uRepo, Clock: clk})
	links := referralservice.New(referralservice.Params{
		DB: db, Log: log, GenID: node, Repo: lRepo, UserRepo: uRepo, Policy: policy, Clock: clk,
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk})
	commissions := commissionservice.New(commissionservice.Params{
		DB: db, Log: log, GenID: node,
		Repo:      commissionrepo.Provide(),
		LinkRepo:  lRepo,
		UserRepo:  uRepo,
		UserSvc:   users,
		LedgerSvc: ledger,
		Clock:     clk,
	})
	sales := service.New(service.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Repo:          repository.Provide(),
		ReferralSvc:   links,
		LinkRepo:      lRepo,
		UserRepo:      uRepo,
		CommissionSvc: commissions,
		Policy:        policy,
		AuditSvc:      audit,
		Clock:         clk,
	})

	return fixture{
		ctx:         orgcontext.WithOrgID(context.Background(), node.Generate()),
		clock:       clk,
		policy:      policy,
		audit:       audit,
		users:       users,
		links:       links,
		commissions: commissions,
		sales:       sales,
	}
}

func (f fixture) user(t *testing.T, name, email, referrerCode, overridePct string) *userdomain.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, userdomain.CreateUserRequest{Name: name, Email: email, ReferrerCode: referrerCode})
	require.NoError(t, err)
	if overridePct != "" {
		u, err = f.users.SetBigBoss(f.ctx, u.ID.String(), userdomain.SetBigBossRequest{
			Enabled:            true,
			OverridePercentage: decimal.RequireFromString(overridePct),
		})
		require.NoError(t, err)
	}
	return u
}

func (f fixture) link(t *testing.T, owner *userdomain.User, rate string) *referraldomain.ReferralLink {
	t.Helper()
	pct := decimal.RequireFromString(rate)
	link, err := f.links.Create(f.ctx, referraldomain.CreateLinkRequest{
		OwnerUserID: owner.ID.String(), TargetType: "nodeboss", TargetID: "nb-1", CommissionPercentage: &pct,
	})
	require.NoError(t, err)
	return link
}

func (f fixture) commissionRows(t *testing.T, saleID snowflake.ID) []commissiondomain.CommissionTransaction {
	t.Helper()
	resp, err := f.commissions.List(f.ctx, commissiondomain.ListCommissionRequest{RelatedSaleID: saleID.String()})
	require.NoError(t, err)
	return resp.Transactions
}

func TestCompleteSettlesDirectAndOverride(t *testing.T) {
	f := setup(t)
	boss := f.user(t, "Boss", "boss@example.com", "", "2")
	seller := f.user(t, "Seller", "seller@example.com", boss.ReferralCode, "")
	link := f.link(t, seller, "10")

	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{
		ReferralCode:          link.Code,
		Amount:                100000,
		Currency:              "usd",
		ExternalTransactionID: "pi_1000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Sale.Status)
	assert.Equal(t, domain.CommissionStatusSettled, res.Sale.CommissionStatus)
	assert.Equal(t, int64(12000), res.Plan.Total)
	require.NotNil(t, res.Sale.SoldAt)

	rows := f.commissionRows(t, res.Sale.ID)
	require.Len(t, rows, 2)
	amounts := map[snowflake.ID]int64{}
	for _, row := range rows {
		amounts[row.UserID] = row.Amount
	}
	assert.Equal(t, int64(10000), amounts[seller.ID])
	assert.Equal(t, int64(2000), amounts[boss.ID])

	stored, err := f.sales.GetByID(f.ctx, res.Sale.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusSettled, stored.CommissionStatus)
	assert.Equal(t, "USD", stored.Currency)
}

func TestCompleteIsIdempotentOnExternalID(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")
	req := domain.SaleRequest{ReferralCode: link.Code, Amount: 5000, Currency: "USD", ExternalTransactionID: "pi_dup"}

	first, err := f.sales.Complete(f.ctx, req)
	require.NoError(t, err)

	second, err := f.sales.Complete(f.ctx, req)
	assert.ErrorIs(t, err, commissiondomain.ErrDuplicateTransaction)
	require.NotNil(t, second)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)

	sales, err := f.sales.List(f.ctx, domain.ListSaleRequest{})
	require.NoError(t, err)
	assert.Len(t, sales.Sales, 1)
	assert.Len(t, f.commissionRows(t, first.Sale.ID), 1)
}

func TestConcurrentCompletionsSettleOnce(t *testing.T) {
	f := setup(t)
	boss := f.user(t, "Boss", "boss@example.com", "", "3")
	seller := f.user(t, "Seller", "seller@example.com", boss.ReferralCode, "")
	link := f.link(t, seller, "10")
	req := domain.SaleRequest{ReferralCode: link.Code, Amount: 7000, Currency: "USD", ExternalTransactionID: "pi_race"}

	const workers = 6
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sales.Complete(f.ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, commissiondomain.ErrDuplicateTransaction):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicates)

	sales, err := f.sales.List(f.ctx, domain.ListSaleRequest{})
	require.NoError(t, err)
	require.Len(t, sales.Sales, 1)
	assert.Len(t, f.commissionRows(t, sales.Sales[0].ID), 2)
}

func TestCompleteZeroAmount(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")

	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 0, Currency: "USD", ExternalTransactionID: "pi_zero"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Sale.Status)
	assert.Empty(t, f.commissionRows(t, res.Sale.ID))
}

func TestCompleteOverrideCountFollowsDepth(t *testing.T) {
	f := setup(t)
	policy := config.DefaultPolicy()
	policy.MaxOverrideDepth = 2
	require.NoError(t, f.policy.Set(policy))

	top := f.user(t, "Top", "top@example.com", "", "1")
	upper := f.user(t, "Upper", "upper@example.com", top.ReferralCode, "1")
	lower := f.user(t, "Lower", "lower@example.com", upper.ReferralCode, "1")
	seller := f.user(t, "Seller", "seller@example.com", lower.ReferralCode, "")
	link := f.link(t, seller, "10")

	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 100000, Currency: "USD", ExternalTransactionID: "pi_depth"})
	require.NoError(t, err)

	rows := f.commissionRows(t, res.Sale.ID)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.NotEqual(t, top.ID, row.UserID)
	}
}

func TestCompleteCappedSaleIsFlagged(t *testing.T) {
	f := setup(t)
	boss := f.user(t, "Boss", "boss@example.com", "", "45")
	seller := f.user(t, "Seller", "seller@example.com", boss.ReferralCode, "")
	link := f.link(t, seller, "20")

	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 1000, Currency: "USD", ExternalTransactionID: "pi_cap"})
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusCapped, res.Sale.CommissionStatus)
	assert.True(t, res.Plan.Capped)

	var total int64
	for _, row := range f.commissionRows(t, res.Sale.ID) {
		total += row.Amount
	}
	assert.Equal(t, int64(500), total)
	assert.Contains(t, f.audit.actions, auditdomain.ActionPayoutCapped)

	backlog, err := f.sales.ReconciliationBacklog(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog[domain.CommissionStatusCapped])
	assert.Equal(t, int64(0), backlog[domain.CommissionStatusPendingReconciliation])
}

func TestSelfReferralPolicies(t *testing.T) {
	t.Run("no commission", func(t *testing.T) {
		f := setup(t)
		seller := f.user(t, "Seller", "seller@example.com", "", "")
		link := f.link(t, seller, "10")

		res, err := f.sales.Complete(f.ctx, domain.SaleRequest{
			ReferralCode: link.Code, BuyerUserID: seller.ID.String(), Amount: 1000, Currency: "USD", ExternalTransactionID: "pi_self",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, res.Sale.Status)
		assert.Equal(t, domain.CommissionStatusSelfReferral, res.Sale.CommissionStatus)
		assert.Empty(t, f.commissionRows(t, res.Sale.ID))
		assert.Equal(t, []string{auditdomain.ActionSelfReferral}, f.audit.actions)
	})

	t.Run("reject", func(t *testing.T) {
		f := setup(t)
		policy := config.DefaultPolicy()
		policy.SelfReferral = config.SelfReferralReject
		require.NoError(t, f.policy.Set(policy))
		seller := f.user(t, "Seller", "seller@example.com", "", "")
		link := f.link(t, seller, "10")

		_, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{
			ReferralCode: link.Code, BuyerUserID: seller.ID.String(), Amount: 1000, Currency: "USD", ExternalTransactionID: "pi_self",
		})
		assert.ErrorIs(t, err, domain.ErrSelfReferral)
	})

	t.Run("pay", func(t *testing.T) {
		f := setup(t)
		policy := config.DefaultPolicy()
		policy.SelfReferral = config.SelfReferralPay
		require.NoError(t, f.policy.Set(policy))
		seller := f.user(t, "Seller", "seller@example.com", "", "")
		link := f.link(t, seller, "10")

		res, err := f.sales.Complete(f.ctx, domain.SaleRequest{
			ReferralCode: link.Code, BuyerUserID: seller.ID.String(), Amount: 1000, Currency: "USD", ExternalTransactionID: "pi_self",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.CommissionStatusSettled, res.Sale.CommissionStatus)
		assert.Len(t, f.commissionRows(t, res.Sale.ID), 1)
	})
}

func TestPendingThenCompleteByExternalID(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	buyer := f.user(t, "Buyer", "buyer@example.com", "", "")
	link := f.link(t, seller, "10")

	pending, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{
		ReferralLinkID: link.ID.String(), BuyerUserID: buyer.ID.String(), Amount: 2500, Currency: "EUR", ExternalTransactionID: "pi_two_step",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)

	again, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{
		ReferralLinkID: link.ID.String(), Amount: 2500, Currency: "EUR", ExternalTransactionID: "pi_two_step",
	})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, again.ID)

	_, err = f.sales.Complete(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_two_step", Amount: 9999, Currency: "EUR"})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	// the link rate changes between checkout and payment; completion uses the current rate
	_, err = f.links.UpdatePercentage(f.ctx, link.ID.String(), decimal.NewFromInt(20))
	require.NoError(t, err)

	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_two_step"})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, res.Sale.ID)
	rows := f.commissionRows(t, res.Sale.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(500), rows[0].Amount)
	assert.Equal(t, "EUR", rows[0].Currency)
}

func TestFailAndCancel(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")

	failed, err := f.sales.Fail(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 100, Currency: "USD", ExternalTransactionID: "pi_fail"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)

	_, err = f.sales.Fail(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_fail"})
	assert.ErrorIs(t, err, commissiondomain.ErrDuplicateTransaction)

	_, err = f.sales.Complete(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_fail"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.sales.Cancel(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	completed, err := f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 100, Currency: "USD", ExternalTransactionID: "pi_done"})
	require.NoError(t, err)
	_, err = f.sales.Cancel(f.ctx, domain.SaleRequest{ExternalTransactionID: completed.Sale.ExternalTransactionID})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreatePendingValidatesLink(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")

	_, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: "nope", Amount: 1, Currency: "USD", ExternalTransactionID: "pi_a"})
	assert.ErrorIs(t, err, referraldomain.ErrNotFound)

	_, err = f.links.SetStatus(f.ctx, link.ID.String(), "inactive")
	require.NoError(t, err)
	_, err = f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 1, Currency: "USD", ExternalTransactionID: "pi_b"})
	assert.ErrorIs(t, err, referraldomain.ErrInactiveLink)
	_, err = f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralLinkID: link.ID.String(), Amount: 1, Currency: "USD", ExternalTransactionID: "pi_c"})
	assert.ErrorIs(t, err, referraldomain.ErrInactiveLink)

	_, err = f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: -1, Currency: "USD", ExternalTransactionID: "pi_d"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 1, Currency: "dollars", ExternalTransactionID: "pi_e"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
	_, err = f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 1, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)
}

func TestExpirePending(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")

	stale, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 10, Currency: "USD", ExternalTransactionID: "pi_old"})
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)
	fresh, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 10, Currency: "USD", ExternalTransactionID: "pi_new"})
	require.NoError(t, err)

	expired, err := f.sales.ExpirePending(context.Background(), f.clock.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.sales.GetByID(f.ctx, stale.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	got, err = f.sales.GetByID(f.ctx, fresh.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestCompleteAfterExpiryStillPays(t *testing.T) {
	f := setup(t)
	boss := f.user(t, "Boss", "boss@example.com", "", "2")
	seller := f.user(t, "Seller", "seller@example.com", boss.ReferralCode, "")
	link := f.link(t, seller, "10")
	req := domain.SaleRequest{ReferralCode: link.Code, Amount: 100000, Currency: "USD", ExternalTransactionID: "pi_late"}

	pending, err := f.sales.CreatePending(f.ctx, req)
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)
	expired, err := f.sales.ExpirePending(context.Background(), f.clock.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	res, err := f.sales.Complete(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, res.Sale.ID)
	assert.Equal(t, domain.StatusCompleted, res.Sale.Status)
	assert.Equal(t, domain.CommissionStatusSettled, res.Sale.CommissionStatus)
	assert.Len(t, f.commissionRows(t, res.Sale.ID), 2)

	stored, err := f.sales.GetByID(f.ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	_, err = f.sales.Complete(f.ctx, req)
	assert.ErrorIs(t, err, commissiondomain.ErrDuplicateTransaction)
}

func TestLateFailureClosesExpiredSale(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")

	_, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 10, Currency: "USD", ExternalTransactionID: "pi_gone"})
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)
	_, err = f.sales.ExpirePending(context.Background(), f.clock.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)

	failed, err := f.sales.Fail(f.ctx, domain.SaleRequest{ExternalTransactionID: "pi_gone"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
}

func TestCompleteRechecksSelfReferralPolicy(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	link := f.link(t, seller, "10")
	req := domain.SaleRequest{
		ReferralCode: link.Code, BuyerUserID: seller.ID.String(), Amount: 1000, Currency: "USD", ExternalTransactionID: "pi_self_late",
	}

	pending, err := f.sales.CreatePending(f.ctx, req)
	require.NoError(t, err)

	policy := config.DefaultPolicy()
	policy.SelfReferral = config.SelfReferralReject
	require.NoError(t, f.policy.Set(policy))

	_, err = f.sales.Complete(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrSelfReferral)

	stored, err := f.sales.GetByID(f.ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, f.commissionRows(t, pending.ID))
}

func TestCompleteRejectsLinkMismatch(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "Seller", "seller@example.com", "", "")
	other := f.user(t, "Other", "other@example.com", "", "")
	link := f.link(t, seller, "10")
	otherLink := f.link(t, other, "10")

	pending, err := f.sales.CreatePending(f.ctx, domain.SaleRequest{
		ReferralCode: link.Code, Amount: 500, Currency: "USD", ExternalTransactionID: "pi_swap",
	})
	require.NoError(t, err)

	_, err = f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: otherLink.Code, Amount: 500, Currency: "USD", ExternalTransactionID: "pi_swap"})
	assert.ErrorIs(t, err, domain.ErrLinkMismatch)
	_, err = f.sales.Complete(f.ctx, domain.SaleRequest{ReferralLinkID: otherLink.ID.String(), ExternalTransactionID: "pi_swap"})
	assert.ErrorIs(t, err, domain.ErrLinkMismatch)
	_, err = f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: "missing", ExternalTransactionID: "pi_swap"})
	assert.ErrorIs(t, err, domain.ErrLinkMismatch)

	stored, err := f.sales.GetByID(f.ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	// deactivating the link after checkout does not block the matching payment
	_, err = f.links.SetStatus(f.ctx, link.ID.String(), "inactive")
	require.NoError(t, err)
	res, err := f.sales.Complete(f.ctx, domain.SaleRequest{ReferralCode: link.Code, Amount: 500, Currency: "USD", ExternalTransactionID: "pi_swap"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Sale.Status)
	assert.Len(t, f.commissionRows(t, res.Sale.ID), 1)
}
