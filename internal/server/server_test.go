package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/nodeboss/internal/auth/domain"
	"github.com/smallbiznis/nodeboss/internal/auth/token"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	salemocks "github.com/smallbiznis/nodeboss/internal/sale/mocks"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	webhookdomain "github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testOrgID    = snowflake.ID(100)
	testMemberID = snowflake.ID(200)
	testAdminID  = snowflake.ID(300)
)

type fakeAuthService struct{}

func (fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	return nil, authdomain.ErrInvalidCredentials
}

// Authenticate accepts "member" and "admin" as tokens.
func (fakeAuthService) Authenticate(ctx context.Context, raw string) (*token.Claims, error) {
	switch raw {
	case "member":
		return &token.Claims{UserID: testMemberID.String(), OrgID: testOrgID.String(), Role: authorization.RoleUser}, nil
	case "admin":
		return &token.Claims{UserID: testAdminID.String(), OrgID: testOrgID.String(), Role: authorization.RoleAdmin}, nil
	default:
		return nil, authdomain.ErrUnauthorized
	}
}

type fakeAuthz struct {
	denied map[string]bool
}

func (f fakeAuthz) Authorize(ctx context.Context, actor, orgID, object, action string) error {
	if f.denied[action] {
		return authorization.ErrForbidden
	}
	return nil
}

func (f fakeAuthz) Allowed(role, object, action string) bool {
	return role == authorization.RoleAdmin
}

type fakeReferralService struct {
	resolution *referraldomain.Resolution
	err        error
	link       *referraldomain.ReferralLink
}

func (f *fakeReferralService) Create(ctx context.Context, req referraldomain.CreateLinkRequest) (*referraldomain.ReferralLink, error) {
	return nil, errors.New("unexpected call")
}

func (f *fakeReferralService) Resolve(ctx context.Context, code string) (*referraldomain.Resolution, error) {
	return f.resolution, f.err
}

func (f *fakeReferralService) GetByID(ctx context.Context, id string) (*referraldomain.ReferralLink, error) {
	if f.link == nil {
		return nil, referraldomain.ErrNotFound
	}
	return f.link, nil
}

func (f *fakeReferralService) List(ctx context.Context, req referraldomain.ListLinkRequest) (referraldomain.ListLinkResponse, error) {
	return referraldomain.ListLinkResponse{}, nil
}

func (f *fakeReferralService) SetStatus(ctx context.Context, id string, status string) (*referraldomain.ReferralLink, error) {
	return nil, errors.New("unexpected call")
}

func (f *fakeReferralService) UpdatePercentage(ctx context.Context, id string, pct decimal.Decimal) (*referraldomain.ReferralLink, error) {
	return nil, errors.New("unexpected call")
}

type fakeCommissionService struct {
	lastList commissiondomain.ListCommissionRequest
	orgID    snowflake.ID
}

func (f *fakeCommissionService) Settle(ctx context.Context, tx *gorm.DB, sale commissiondomain.SaleRef, policy config.Policy) (commissiondomain.Plan, error) {
	return commissiondomain.Plan{}, errors.New("unexpected call")
}

func (f *fakeCommissionService) CreateAdjustment(ctx context.Context, req commissiondomain.CreateAdjustmentRequest) (*commissiondomain.CommissionTransaction, error) {
	return nil, errors.New("unexpected call")
}

func (f *fakeCommissionService) GetByID(ctx context.Context, id string) (*commissiondomain.CommissionTransaction, error) {
	return nil, commissiondomain.ErrNotFound
}

func (f *fakeCommissionService) List(ctx context.Context, req commissiondomain.ListCommissionRequest) (commissiondomain.ListCommissionResponse, error) {
	f.lastList = req
	f.orgID, _ = orgcontext.OrgIDFromContext(ctx)
	return commissiondomain.ListCommissionResponse{}, nil
}

type fakeWebhookService struct {
	result *webhookdomain.Result
	err    error
}

func (f fakeWebhookService) Ingest(ctx context.Context, orgID string, payload []byte, headers http.Header) (*webhookdomain.Result, error) {
	return f.result, f.err
}

type testDeps struct {
	authz      fakeAuthz
	referral   *fakeReferralService
	commission *fakeCommissionService
	webhook    fakeWebhookService
	sale       saledomain.Service
}

func newTestServer(t *testing.T, deps testDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.referral == nil {
		deps.referral = &fakeReferralService{}
	}
	if deps.commission == nil {
		deps.commission = &fakeCommissionService{}
	}
	if deps.sale == nil {
		deps.sale = salemocks.NewMockService(gomock.NewController(t))
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin: engine,
		Cfg: config.Config{
			ReferralCookieName: "nodeboss_ref",
			ReferralCookieTTL:  24 * time.Hour,
		},
		Authsvc:       fakeAuthService{},
		AuthzSvc:      deps.authz,
		ReferralSvc:   deps.referral,
		CommissionSvc: deps.commission,
		SaleSvc:       deps.sale,
		WebhookSvc:    deps.webhook,
	})
	return srv.Engine()
}

func doRequest(engine *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", userdomain.ErrInvalidEmail, http.StatusBadRequest},
		{"cycle", userdomain.ErrReferralCycle, http.StatusBadRequest},
		{"webhook payload", webhookdomain.ErrUnsupportedEventType, http.StatusBadRequest},
		{"link not found", referraldomain.ErrNotFound, http.StatusNotFound},
		{"inactive link", referraldomain.ErrInactiveLink, http.StatusGone},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden},
		{"bad credentials", authdomain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"bad signature", webhookdomain.ErrInvalidSignature, http.StatusUnauthorized},
		{"transition", saledomain.ErrInvalidTransition, http.StatusConflict},
		{"link mismatch", saledomain.ErrLinkMismatch, http.StatusConflict},
		{"in flight", webhookdomain.ErrDeliveryInProgress, http.StatusConflict},
		{"atomic write", commissiondomain.NewAtomicWriteError("insert", errors.New("boom")), http.StatusServiceUnavailable},
		{"wrapped not found", errors.Join(errors.New("load"), saledomain.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	_, payload := mapError(userdomain.ErrInvalidEmail)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "email", payload.Errors[0].Field)
	assert.Equal(t, "invalid_email", payload.Errors[0].Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	engine := newTestServer(t, testDeps{})

	rec := doRequest(engine, http.MethodGet, "/api/commissions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(engine, http.MethodGet, "/api/commissions", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRejectsDeniedAction(t *testing.T) {
	engine := newTestServer(t, testDeps{
		authz: fakeAuthz{denied: map[string]bool{authorization.ActionCommissionAdjust: true}},
	})

	rec := doRequest(engine, http.MethodPost, "/api/commissions/adjustments", "member", map[string]any{
		"user_id":  testMemberID.String(),
		"amount":   100,
		"currency": "USD",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListCommissionsScopesMembersToThemselves(t *testing.T) {
	commissions := &fakeCommissionService{}
	engine := newTestServer(t, testDeps{commission: commissions})

	rec := doRequest(engine, http.MethodGet, "/api/commissions", "member", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testMemberID.String(), commissions.lastList.UserID)
	assert.Equal(t, testOrgID, commissions.orgID)

	rec = doRequest(engine, http.MethodGet, "/api/commissions?user_id=999", "member", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(engine, http.MethodGet, "/api/commissions?user_id=999", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "999", commissions.lastList.UserID)
}

func TestGetLinkHidesOtherOwnersFromMembers(t *testing.T) {
	referral := &fakeReferralService{
		link: &referraldomain.ReferralLink{ID: 55, OrgID: testOrgID, OwnerUserID: testAdminID, Code: "boss-abc"},
	}
	engine := newTestServer(t, testDeps{referral: referral})

	rec := doRequest(engine, http.MethodGet, "/api/links/55", "member", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(engine, http.MethodGet, "/api/links/55", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveReferralSetsAttributionCookie(t *testing.T) {
	referral := &fakeReferralService{
		resolution: &referraldomain.Resolution{
			Link:  referraldomain.ReferralLink{ID: 55, Code: "jane-7k2m9q", Status: referraldomain.LinkStatusActive},
			Owner: referraldomain.Owner{ID: testMemberID, Name: "Jane"},
		},
	}
	engine := newTestServer(t, testDeps{referral: referral})

	rec := doRequest(engine, http.MethodGet, "/r/jane-7k2m9q", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "nodeboss_ref", cookies[0].Name)
	assert.Equal(t, "jane-7k2m9q", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestResolveReferralInactiveLinkIsGone(t *testing.T) {
	engine := newTestServer(t, testDeps{referral: &fakeReferralService{err: referraldomain.ErrInactiveLink}})

	rec := doRequest(engine, http.MethodGet, "/r/old-link", "", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, "referral_link_inactive", decodeError(t, rec).Code)
}

func TestCompleteSaleAcknowledgesDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	sales := salemocks.NewMockService(ctrl)
	stored := &saledomain.Sale{ID: 77, OrgID: testOrgID, Status: saledomain.StatusCompleted, ExternalTransactionID: "pi_1"}
	sales.EXPECT().
		Complete(gomock.Any(), saledomain.SaleRequest{
			ReferralCode:          "jane-7k2m9q",
			Amount:                10000,
			Currency:              "USD",
			ExternalTransactionID: "pi_1",
		}).
		Return(&saledomain.CompletionResult{Sale: stored}, commissiondomain.ErrDuplicateTransaction)

	engine := newTestServer(t, testDeps{sale: sales})

	rec := doRequest(engine, http.MethodPost, "/api/sales/complete", "admin", map[string]any{
		"referral_code":           "jane-7k2m9q",
		"amount":                  10000,
		"currency":                "usd",
		"external_transaction_id": "pi_1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data      saledomain.Sale `json:"data"`
		Duplicate bool            `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Duplicate)
	assert.Equal(t, snowflake.ID(77), body.Data.ID)
}

func TestCompleteSaleSurfacesAtomicWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sales := salemocks.NewMockService(ctrl)
	sales.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		Return(nil, commissiondomain.NewAtomicWriteError("insert commission", errors.New("connection reset")))

	engine := newTestServer(t, testDeps{sale: sales})

	rec := doRequest(engine, http.MethodPost, "/api/sales/complete", "admin", map[string]any{
		"referral_code":           "jane-7k2m9q",
		"amount":                  10000,
		"currency":                "USD",
		"external_transaction_id": "pi_2",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestSaleWebhookStatuses(t *testing.T) {
	cases := []struct {
		name   string
		svc    fakeWebhookService
		status int
	}{
		{
			name:   "applied",
			svc:    fakeWebhookService{result: &webhookdomain.Result{EventID: "evt_1", Outcome: webhookdomain.OutcomeCompleted}},
			status: http.StatusOK,
		},
		{
			name:   "duplicate",
			svc:    fakeWebhookService{result: &webhookdomain.Result{EventID: "evt_1", Outcome: webhookdomain.OutcomeDuplicate}},
			status: http.StatusOK,
		},
		{
			name:   "bad signature",
			svc:    fakeWebhookService{err: webhookdomain.ErrInvalidSignature},
			status: http.StatusUnauthorized,
		},
		{
			name:   "retryable",
			svc:    fakeWebhookService{err: commissiondomain.NewAtomicWriteError("settle", errors.New("deadlock"))},
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "in flight",
			svc:    fakeWebhookService{err: webhookdomain.ErrDeliveryInProgress},
			status: http.StatusConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, testDeps{webhook: tc.svc})
			req := httptest.NewRequest(http.MethodPost, "/webhooks/100/sales", strings.NewReader(`{"id":"evt_1"}`))
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	raw, ok := bearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", raw)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = bearerToken("Bearer")
	assert.False(t, ok)
}
