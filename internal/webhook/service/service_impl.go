package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/audit/masking"
	"github.com/smallbiznis/nodeboss/internal/clock"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/observability/metrics"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	orgdomain "github.com/smallbiznis/nodeboss/internal/organization/domain"
	"github.com/smallbiznis/nodeboss/internal/ratelimit"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	"github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Cfg     config.Config
	Repo    domain.Repository
	OrgRepo orgdomain.Repository
	SaleSvc saledomain.Service
	Locker  *ratelimit.Locker `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
	Clock   clock.Clock       `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	orgRepo   orgdomain.Repository
	saleSvc   saledomain.Service
	locker    *ratelimit.Locker
	metrics   *metrics.Metrics
	clock     clock.Clock
	secret    string
	tolerance time.Duration
	lockTTL   time.Duration
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	lockTTL := p.Cfg.WebhookLockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		orgRepo:   p.OrgRepo,
		saleSvc:   p.SaleSvc,
		locker:    p.Locker,
		metrics:   p.Metrics,
		clock:     clk,
		secret:    p.Cfg.WebhookSigningSecret,
		tolerance: p.Cfg.WebhookTolerance,
		lockTTL:   lockTTL,
	}
}

func (s *Service) Ingest(ctx context.Context, orgID string, payload []byte, headers http.Header) (*domain.Result, error) {
	if s.secret == "" {
		return nil, domain.ErrNotConfigured
	}
	signature := headers.Get(domain.SignatureHeader)
	if err := Verify(s.secret, signature, payload, s.clock.Now(), s.tolerance); err != nil {
		s.log.Warn("rejected sale event signature",
			zap.String("signature", masking.MaskSignature(signature)),
			zap.Error(err),
		)
		s.metrics.RecordSaleEvent(ctx, "unknown", "invalid_signature")
		return nil, err
	}

	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	envelope, err := parseEnvelope(payload)
	if err != nil {
		s.metrics.RecordSaleEvent(ctx, "unknown", "invalid_payload")
		return nil, err
	}
	ctx = orgcontext.WithOrgID(ctx, org.ID)

	event := &domain.SaleEvent{
		ID:                    s.genID.Generate(),
		OrgID:                 org.ID,
		ProviderEventID:       envelope.ID,
		EventType:             envelope.Type,
		ExternalTransactionID: envelope.Data.ExternalTransactionID,
		Payload:               datatypes.JSON(payload),
		ReceivedAt:            s.clock.Now().UTC(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, org.ID, envelope.ID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.metrics.RecordSaleEvent(ctx, envelope.Type, string(domain.OutcomeDuplicate))
			return &domain.Result{EventID: envelope.ID, Outcome: domain.OutcomeDuplicate}, nil
		}
		event = stored
	}

	release, err := s.lock(ctx, org.ID, envelope.Data.ExternalTransactionID)
	if err != nil {
		return nil, err
	}
	defer release()

	outcome, sale, applyErr := s.apply(ctx, envelope)
	switch {
	case applyErr == nil:
	case errors.Is(applyErr, commissiondomain.ErrDuplicateTransaction):
		outcome = domain.OutcomeDuplicate
	case isPermanent(applyErr):
		outcome = domain.OutcomeRejected
	default:
		// Left unprocessed so the gateway's retry applies it.
		s.log.Error("sale event not applied",
			zap.String("org_id", org.ID.String()),
			zap.String("event_id", envelope.ID),
			zap.String("event_type", envelope.Type),
			zap.Error(applyErr),
		)
		s.metrics.RecordSaleEvent(ctx, envelope.Type, "retry")
		return nil, applyErr
	}

	if err := s.repo.MarkProcessed(ctx, s.db, event.ID, outcome, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	s.metrics.RecordSaleEvent(ctx, envelope.Type, string(outcome))

	if outcome == domain.OutcomeRejected {
		s.log.Info("sale event rejected",
			zap.String("org_id", org.ID.String()),
			zap.String("event_id", envelope.ID),
			zap.Any("payload", maskedPayload(payload)),
			zap.Error(applyErr),
		)
		return nil, applyErr
	}

	result := &domain.Result{EventID: envelope.ID, Outcome: outcome}
	if sale != nil {
		result.SaleID = sale.ID.String()
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, envelope domain.Envelope) (domain.Outcome, *saledomain.Sale, error) {
	req := saledomain.SaleRequest{
		ReferralCode:          envelope.Data.ReferralCode,
		ReferralLinkID:        envelope.Data.ReferralLinkID,
		BuyerUserID:           envelope.Data.BuyerID,
		Amount:                envelope.Data.Amount,
		Currency:              envelope.Data.Currency,
		ExternalTransactionID: envelope.Data.ExternalTransactionID,
	}
	switch envelope.Type {
	case domain.EventSaleCompleted:
		res, err := s.saleSvc.Complete(ctx, req)
		var sale *saledomain.Sale
		if res != nil {
			sale = res.Sale
		}
		return domain.OutcomeCompleted, sale, err
	case domain.EventSaleFailed:
		sale, err := s.saleSvc.Fail(ctx, req)
		return domain.OutcomeFailed, sale, err
	case domain.EventSaleCanceled:
		sale, err := s.saleSvc.Cancel(ctx, req)
		return domain.OutcomeCanceled, sale, err
	default:
		return domain.OutcomeRejected, nil, domain.ErrUnsupportedEventType
	}
}

// lock serializes deliveries for one external transaction. Redis is an
// optimization here: the sale status CAS stays authoritative, so lock errors
// only log.
func (s *Service) lock(ctx context.Context, orgID snowflake.ID, externalID string) (func(), error) {
	noop := func() {}
	if !s.locker.Enabled() {
		return noop, nil
	}
	key := ratelimit.SaleEventKey(orgID.String(), externalID)
	lease, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return noop, domain.ErrDeliveryInProgress
	}
	if err != nil {
		s.log.Warn("sale event lock unavailable", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release sale event lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) loadOrganization(ctx context.Context, raw string) (*orgdomain.Organization, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.orgRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func parseEnvelope(payload []byte) (domain.Envelope, error) {
	var envelope domain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return domain.Envelope{}, domain.ErrInvalidPayload
	}
	envelope.ID = strings.TrimSpace(envelope.ID)
	envelope.Type = strings.ToLower(strings.TrimSpace(envelope.Type))
	envelope.Data.ExternalTransactionID = strings.TrimSpace(envelope.Data.ExternalTransactionID)
	if envelope.ID == "" || envelope.Data.ExternalTransactionID == "" {
		return domain.Envelope{}, domain.ErrInvalidEvent
	}
	switch envelope.Type {
	case domain.EventSaleCompleted, domain.EventSaleFailed, domain.EventSaleCanceled:
	default:
		return domain.Envelope{}, domain.ErrUnsupportedEventType
	}
	return envelope, nil
}

// maskedPayload keeps amounts and event fields readable for logs and redacts
// buyer and transaction identifiers.
func maskedPayload(payload []byte) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return masking.MaskSaleEvent(fields)
}

var permanentErrors = []error{
	saledomain.ErrInvalidSale,
	saledomain.ErrInvalidLink,
	saledomain.ErrInvalidBuyer,
	saledomain.ErrInvalidAmount,
	saledomain.ErrInvalidCurrency,
	saledomain.ErrInvalidExternalID,
	saledomain.ErrBuyerNotFound,
	saledomain.ErrNotFound,
	saledomain.ErrInvalidTransition,
	saledomain.ErrAmountMismatch,
	saledomain.ErrLinkMismatch,
	saledomain.ErrSelfReferral,
	referraldomain.ErrInvalidCode,
	referraldomain.ErrNotFound,
	referraldomain.ErrInactiveLink,
	domain.ErrUnsupportedEventType,
}

// isPermanent reports whether redelivering the event can never succeed.
func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
