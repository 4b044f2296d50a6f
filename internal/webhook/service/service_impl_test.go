package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/nodeboss/internal/clock"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	orgdomain "github.com/smallbiznis/nodeboss/internal/organization/domain"
	orgrepo "github.com/smallbiznis/nodeboss/internal/organization/repository"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	salemocks "github.com/smallbiznis/nodeboss/internal/sale/mocks"
	"github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"github.com/smallbiznis/nodeboss/internal/webhook/repository"
	"github.com/smallbiznis/nodeboss/internal/webhook/service"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "whsec_test_4f1c"

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	orgID snowflake.ID
	repo  domain.Repository
	sales *salemocks.MockService
	svc   domain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	orgs := orgrepo.NewRepository(db)
	orgID := node.Generate()
	created, err := orgs.CreateOrganization(context.Background(), orgdomain.Organization{
		ID: orgID, Name: "Acme", Slug: "acme", CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)

	sales := salemocks.NewMockService(gomock.NewController(t))
	repo := repository.Provide()
	svc := service.New(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Cfg:     config.Config{WebhookSigningSecret: secret, WebhookTolerance: 5 * time.Minute},
		Repo:    repo,
		OrgRepo: orgs,
		SaleSvc: sales,
		Clock:   clk,
	})
	return fixture{db: db, clock: clk, orgID: orgID, repo: repo, sales: sales, svc: svc}
}

func (f fixture) deliver(payload string) (*domain.Result, error) {
	headers := http.Header{}
	headers.Set(domain.SignatureHeader, service.Sign(secret, f.clock.Now().Unix(), []byte(payload)))
	return f.svc.Ingest(context.Background(), f.orgID.String(), []byte(payload), headers)
}

func (f fixture) outcome(t *testing.T, eventID string) *domain.SaleEvent {
	t.Helper()
	event, err := f.repo.FindEvent(context.Background(), f.db, f.orgID, eventID)
	require.NoError(t, err)
	require.NotNil(t, event)
	return event
}

const completedPayload = `{"id":"evt_1","type":"sale.completed","data":{"referral_code":"alice-x1y2z3","amount":100000,"currency":"USD","external_transaction_id":"pi_100"}}`

func TestVerifySignature(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt"}`)
	header := service.Sign(secret, now.Unix(), payload)

	assert.NoError(t, service.Verify(secret, header, payload, now.Add(time.Minute), 5*time.Minute))
	assert.ErrorIs(t, service.Verify(secret, header, []byte(`{"id":"evu"}`), now, 5*time.Minute), domain.ErrInvalidSignature)
	assert.ErrorIs(t, service.Verify("whsec_other", header, payload, now, 5*time.Minute), domain.ErrInvalidSignature)
	assert.ErrorIs(t, service.Verify(secret, header, payload, now.Add(6*time.Minute), 5*time.Minute), domain.ErrSignatureExpired)
	assert.ErrorIs(t, service.Verify(secret, "", payload, now, 5*time.Minute), domain.ErrInvalidSignature)
	assert.ErrorIs(t, service.Verify(secret, "t=abc,v1=00", payload, now, 5*time.Minute), domain.ErrInvalidSignature)
	assert.ErrorIs(t, service.Verify(secret, "v1=00", payload, now, 5*time.Minute), domain.ErrInvalidSignature)

	rotated := header + ",v1=deadbeef"
	assert.NoError(t, service.Verify(secret, rotated, payload, now, 5*time.Minute))
}

func TestIngestCompletesOnce(t *testing.T) {
	f := setup(t)
	saleID := snowflake.ID(42)
	f.sales.EXPECT().
		Complete(gomock.Any(), saledomain.SaleRequest{
			ReferralCode:          "alice-x1y2z3",
			Amount:                100000,
			Currency:              "USD",
			ExternalTransactionID: "pi_100",
		}).
		Return(&saledomain.CompletionResult{Sale: &saledomain.Sale{ID: saleID}}, nil).
		Times(1)

	res, err := f.deliver(completedPayload)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Equal(t, saleID.String(), res.SaleID)

	stored := f.outcome(t, "evt_1")
	require.NotNil(t, stored.ProcessedAt)
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, "completed", *stored.Outcome)
	assert.Equal(t, "pi_100", stored.ExternalTransactionID)

	res, err = f.deliver(completedPayload)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
}

func TestIngestAcknowledgesDuplicateTransaction(t *testing.T) {
	f := setup(t)
	f.sales.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		Return(&saledomain.CompletionResult{Sale: &saledomain.Sale{ID: 7}}, commissiondomain.ErrDuplicateTransaction)

	res, err := f.deliver(completedPayload)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, "7", res.SaleID)
}

func TestIngestRetriesAfterAtomicWriteFailure(t *testing.T) {
	f := setup(t)
	gomock.InOrder(
		f.sales.EXPECT().
			Complete(gomock.Any(), gomock.Any()).
			Return(nil, commissiondomain.NewAtomicWriteError("complete_sale", errors.New("connection reset"))),
		f.sales.EXPECT().
			Complete(gomock.Any(), gomock.Any()).
			Return(&saledomain.CompletionResult{Sale: &saledomain.Sale{ID: 9}}, nil),
	)

	_, err := f.deliver(completedPayload)
	require.ErrorIs(t, err, commissiondomain.ErrAtomicWrite)
	assert.Nil(t, f.outcome(t, "evt_1").ProcessedAt)

	res, err := f.deliver(completedPayload)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
}

func TestIngestRecordsPermanentRejection(t *testing.T) {
	f := setup(t)
	f.sales.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		Return(nil, saledomain.ErrAmountMismatch).
		Times(1)

	_, err := f.deliver(completedPayload)
	require.ErrorIs(t, err, saledomain.ErrAmountMismatch)
	stored := f.outcome(t, "evt_1")
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, "rejected", *stored.Outcome)

	res, err := f.deliver(completedPayload)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
}

func TestIngestDispatchesFailAndCancel(t *testing.T) {
	f := setup(t)
	f.sales.EXPECT().
		Fail(gomock.Any(), saledomain.SaleRequest{ReferralCode: "bob-aa", ExternalTransactionID: "pi_f"}).
		Return(&saledomain.Sale{ID: 11, Status: saledomain.StatusFailed}, nil)
	f.sales.EXPECT().
		Cancel(gomock.Any(), saledomain.SaleRequest{ExternalTransactionID: "pi_c"}).
		Return(&saledomain.Sale{ID: 12, Status: saledomain.StatusCanceled}, nil)

	res, err := f.deliver(`{"id":"evt_f","type":"sale.failed","data":{"referral_code":"bob-aa","external_transaction_id":"pi_f"}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)

	res, err = f.deliver(`{"id":"evt_c","type":"SALE.CANCELED","data":{"external_transaction_id":"pi_c"}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCanceled, res.Outcome)
}

func TestIngestRejectsBeforeRecording(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name    string
		orgID   string
		payload string
		header  string
		want    error
	}{
		{"bad signature", f.orgID.String(), completedPayload, "t=1,v1=00", domain.ErrInvalidSignature},
		{"stale signature", f.orgID.String(), completedPayload, service.Sign(secret, f.clock.Now().Add(-time.Hour).Unix(), []byte(completedPayload)), domain.ErrSignatureExpired},
		{"bad org", "nope", completedPayload, "", domain.ErrInvalidOrganization},
		{"unknown org", "12345", completedPayload, "", domain.ErrOrganizationNotFound},
		{"not json", f.orgID.String(), `{`, "", domain.ErrInvalidPayload},
		{"missing id", f.orgID.String(), `{"type":"sale.completed","data":{"external_transaction_id":"x"}}`, "", domain.ErrInvalidEvent},
		{"unknown type", f.orgID.String(), `{"id":"e","type":"sale.refunded","data":{"external_transaction_id":"x"}}`, "", domain.ErrUnsupportedEventType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := tc.header
			if header == "" {
				header = service.Sign(secret, f.clock.Now().Unix(), []byte(tc.payload))
			}
			headers := http.Header{}
			headers.Set(domain.SignatureHeader, header)
			_, err := f.svc.Ingest(context.Background(), tc.orgID, []byte(tc.payload), headers)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM sale_events`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestIngestRequiresSecret(t *testing.T) {
	svc := service.New(service.Params{Log: zap.NewNop()})
	_, err := svc.Ingest(context.Background(), "1", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
