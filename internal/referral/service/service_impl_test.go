package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	"github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/internal/referral/repository"
	"github.com/smallbiznis/nodeboss/internal/referral/service"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	userrepo "github.com/smallbiznis/nodeboss/internal/user/repository"
	userservice "github.com/smallbiznis/nodeboss/internal/user/service"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
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
	ctx   context.Context
	links domain.Service
	users userdomain.Service
	audit *recordingAudit
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	users := userrepo.Provide()
	audit := &recordingAudit{}

	policy := config.DefaultPolicy()
	policy.DefaultLinkPercentage = decimal.NewFromInt(7)

	return fixture{
		ctx: orgcontext.WithOrgID(context.Background(), node.Generate()),
		links: service.New(service.Params{
			DB:       db,
			Log:      zap.NewNop(),
			GenID:    node,
			Repo:     repository.Provide(),
			UserRepo: users,
			Policy:   config.NewStaticPolicyHolder(policy),
			AuditSvc: audit,
		}),
		users: userservice.New(userservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Repo:  users,
		}),
		audit: audit,
	}
}

func (f fixture) owner(t *testing.T, name, email string) *userdomain.User {
	t.Helper()
	user, err := f.users.Create(f.ctx, userdomain.CreateUserRequest{Name: name, Email: email})
	require.NoError(t, err)
	return user
}

func (f fixture) link(t *testing.T, owner *userdomain.User, pct *decimal.Decimal) *domain.ReferralLink {
	t.Helper()
	link, err := f.links.Create(f.ctx, domain.CreateLinkRequest{
		OwnerUserID:          owner.ID.String(),
		TargetType:           "NodeBoss",
		TargetID:             "node-1",
		CommissionPercentage: pct,
	})
	require.NoError(t, err)
	return link
}

func TestCreateAppliesDefaultPercentage(t *testing.T) {
	f := setup(t)
	owner := f.owner(t, "Link Owner", "owner@example.com")

	link := f.link(t, owner, nil)
	assert.True(t, link.CommissionPercentage.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, domain.LinkStatusActive, link.Status)
	assert.Equal(t, "nodeboss", link.TargetType)
	assert.Contains(t, link.Code, "link-owner-")

	pct := decimal.RequireFromString("12.5")
	custom := f.link(t, owner, &pct)
	assert.True(t, custom.CommissionPercentage.Equal(pct))
	assert.NotEqual(t, link.Code, custom.Code)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := setup(t)
	owner := f.owner(t, "Owner", "owner@example.com")

	tooHigh := decimal.NewFromInt(101)
	_, err := f.links.Create(f.ctx, domain.CreateLinkRequest{
		OwnerUserID: owner.ID.String(), TargetType: "product", TargetID: "p1", CommissionPercentage: &tooHigh,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	negative := decimal.NewFromInt(-1)
	_, err = f.links.Create(f.ctx, domain.CreateLinkRequest{
		OwnerUserID: owner.ID.String(), TargetType: "product", TargetID: "p1", CommissionPercentage: &negative,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	_, err = f.links.Create(f.ctx, domain.CreateLinkRequest{OwnerUserID: owner.ID.String(), TargetType: "product"})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	_, err = f.links.Create(f.ctx, domain.CreateLinkRequest{OwnerUserID: "12345", TargetType: "product", TargetID: "p1"})
	assert.ErrorIs(t, err, domain.ErrOwnerNotFound)

	_, err = f.links.Create(f.ctx, domain.CreateLinkRequest{OwnerUserID: "nope", TargetType: "product", TargetID: "p1"})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
}

func TestResolve(t *testing.T) {
	f := setup(t)
	owner := f.owner(t, "Resolver", "resolver@example.com")
	link := f.link(t, owner, nil)

	res, err := f.links.Resolve(f.ctx, "  "+link.Code+"  ")
	require.NoError(t, err)
	assert.Equal(t, link.ID, res.Link.ID)
	assert.Equal(t, owner.ID, res.Owner.ID)
	assert.Equal(t, owner.ReferralCode, res.Owner.ReferralCode)

	// public visits carry no organization
	res, err = f.links.Resolve(context.Background(), link.Code)
	require.NoError(t, err)
	assert.Equal(t, link.OrgID, res.Link.OrgID)

	_, err = f.links.Resolve(f.ctx, "unknown-code")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.links.Resolve(f.ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	other := orgcontext.WithOrgID(context.Background(), snowflake.ID(99))
	_, err = f.links.Resolve(other, link.Code)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.links.SetStatus(f.ctx, link.ID.String(), "inactive")
	require.NoError(t, err)
	_, err = f.links.Resolve(f.ctx, link.Code)
	assert.ErrorIs(t, err, domain.ErrInactiveLink)
}

func TestSetStatusAndPercentageAreAudited(t *testing.T) {
	f := setup(t)
	owner := f.owner(t, "Owner", "owner@example.com")
	link := f.link(t, owner, nil)

	updated, err := f.links.SetStatus(f.ctx, link.ID.String(), "INACTIVE")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkStatusInactive, updated.Status)

	// no-op transitions are not audited
	_, err = f.links.SetStatus(f.ctx, link.ID.String(), "inactive")
	require.NoError(t, err)

	_, err = f.links.SetStatus(f.ctx, link.ID.String(), "archived")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	pct := decimal.NewFromInt(15)
	updated, err = f.links.UpdatePercentage(f.ctx, link.ID.String(), pct)
	require.NoError(t, err)
	assert.True(t, updated.CommissionPercentage.Equal(pct))

	stored, err := f.links.GetByID(f.ctx, link.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.CommissionPercentage.Equal(pct))
	assert.Equal(t, domain.LinkStatusInactive, stored.Status)

	_, err = f.links.UpdatePercentage(f.ctx, link.ID.String(), decimal.NewFromInt(200))
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	assert.Equal(t, []string{
		auditdomain.ActionReferralLinkStatus,
		auditdomain.ActionReferralLinkPercentage,
	}, f.audit.actions)
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := setup(t)
	alice := f.owner(t, "Alice", "alice@example.com")
	bob := f.owner(t, "Bob", "bob@example.com")

	for i := 0; i < 3; i++ {
		f.link(t, alice, nil)
	}
	bobLink := f.link(t, bob, nil)
	_, err := f.links.SetStatus(f.ctx, bobLink.ID.String(), "inactive")
	require.NoError(t, err)

	page, err := f.links.List(f.ctx, domain.ListLinkRequest{
		OwnerUserID: alice.ID.String(),
		Pagination:  pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Links, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextPageToken)

	next, err := f.links.List(f.ctx, domain.ListLinkRequest{
		OwnerUserID: alice.ID.String(),
		Pagination:  pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.Links, 1)
	assert.False(t, next.HasMore)
	assert.Less(t, int64(next.Links[0].ID), int64(page.Links[1].ID))

	inactive, err := f.links.List(f.ctx, domain.ListLinkRequest{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, inactive.Links, 1)
	assert.Equal(t, bobLink.ID, inactive.Links[0].ID)

	_, err = f.links.List(f.ctx, domain.ListLinkRequest{Status: "unknown"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
