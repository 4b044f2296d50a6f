package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zap.NewNop(), Enforcer: enforcer}), conn
}

func insertUser(t *testing.T, conn *gorm.DB, orgID, id snowflake.ID, role string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, conn.Exec(
		`INSERT INTO users (id, org_id, name, email, role, referral_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, orgID, "member", id.String()+"@example.com", role, "code-"+id.String(), now, now,
	).Error)
}

func TestAllowedMatrix(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		role    string
		action  string
		allowed bool
	}{
		{RoleAdmin, ActionCommissionAdjust, true},
		{RoleAdmin, ActionAuditLogView, true},
		{RoleOrganization, ActionReferralLinkUpdate, true},
		{RoleOrganization, ActionUserSetBigBoss, true},
		{RoleOrganization, ActionCommissionAdjust, false},
		{RoleOrganization, ActionSaleComplete, false},
		{RoleUser, ActionReferralLinkCreate, true},
		{RoleUser, ActionCommissionView, true},
		{RoleUser, ActionCommissionViewAll, false},
		{RoleUser, ActionSaleView, false},
		{RoleSystem, ActionSaleComplete, true},
		{RoleSystem, ActionUserCreate, false},
		{"", ActionSaleView, false},
	}

	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.action, func(t *testing.T) {
			assert.Equal(t, tc.allowed, svc.Allowed(tc.role, objectOf(tc.action), tc.action))
		})
	}
}

func TestAuthorizeFollowsStoredRole(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)
	userID := snowflake.ID(20)
	insertUser(t, conn, orgID, userID, RoleUser)

	actor := "user:" + userID.String()
	require.NoError(t, svc.Authorize(ctx, actor, orgID.String(), ObjectReferralLink, ActionReferralLinkCreate))
	assert.ErrorIs(t, svc.Authorize(ctx, actor, orgID.String(), ObjectSale, ActionSaleView), ErrForbidden)

	require.NoError(t, conn.Exec(`UPDATE users SET role = ? WHERE id = ?`, RoleOrganization, userID).Error)
	assert.NoError(t, svc.Authorize(ctx, actor, orgID.String(), ObjectSale, ActionSaleView))
}

func TestAuthorizeIsScopedToOrganization(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	insertUser(t, conn, 10, 20, RoleAdmin)

	require.NoError(t, svc.Authorize(ctx, "user:20", "10", ObjectCommission, ActionCommissionAdjust))
	assert.ErrorIs(t, svc.Authorize(ctx, "user:20", "11", ObjectCommission, ActionCommissionAdjust), ErrForbidden)
}

func TestAuthorizeSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, SystemActor, "10", ObjectSale, ActionSaleComplete))
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor, "10", ObjectUser, ActionUserCreate), ErrForbidden)
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "10", ObjectSale, ActionSaleView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "api_key:1", "10", ObjectSale, ActionSaleView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:abc", "10", ObjectSale, ActionSaleView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:20", "", ObjectSale, ActionSaleView), ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:20", "10", "", ActionSaleView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:20", "10", ObjectSale, ""), ErrInvalidAction)
}
