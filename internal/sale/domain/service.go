package domain

import (
	"context"
	"errors"
	"time"

	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

type Service interface {
	CreatePending(ctx context.Context, req SaleRequest) (*Sale, error)
	// Complete marks the sale for req's external transaction completed and
	// settles its commissions in the same transaction. A sale that was
	// already completed yields ErrDuplicateTransaction with the stored result.
	Complete(ctx context.Context, req SaleRequest) (*CompletionResult, error)
	Fail(ctx context.Context, req SaleRequest) (*Sale, error)
	Cancel(ctx context.Context, req SaleRequest) (*Sale, error)
	GetByID(ctx context.Context, id string) (*Sale, error)
	List(ctx context.Context, req ListSaleRequest) (ListSaleResponse, error)
	ExpirePending(ctx context.Context, olderThan time.Time, limit int) (int, error)
	ReconciliationBacklog(ctx context.Context) (map[CommissionStatus]int64, error)
}

// SaleRequest carries a payment event. Either ReferralCode or
// ReferralLinkID identifies the link when the sale is not yet recorded.
type SaleRequest struct {
	ReferralCode          string `json:"referral_code"`
	ReferralLinkID        string `json:"referral_link_id"`
	BuyerUserID           string `json:"buyer_id"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	ExternalTransactionID string `json:"external_transaction_id"`
}

func (r SaleRequest) HasLink() bool {
	return r.ReferralCode != "" || r.ReferralLinkID != ""
}

type CompletionResult struct {
	Sale *Sale                 `json:"sale"`
	Plan commissiondomain.Plan `json:"-"`
}

type ListSaleRequest struct {
	pagination.Pagination
	ReferralLinkID string
	BuyerUserID    string
	Status         string
	StartAt        *time.Time
	EndAt          *time.Time
}

type ListSaleResponse struct {
	pagination.PageInfo
	Sales []Sale `json:"sales"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSale         = errors.New("invalid_sale")
	ErrInvalidLink         = errors.New("invalid_referral_link")
	ErrInvalidBuyer        = errors.New("invalid_buyer")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidExternalID   = errors.New("invalid_external_transaction_id")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrBuyerNotFound       = errors.New("buyer_not_found")
	ErrNotFound            = errors.New("sale_not_found")
	// ErrInvalidTransition is returned when the sale already reached a
	// different terminal status.
	ErrInvalidTransition = errors.New("invalid_sale_transition")
	// ErrAmountMismatch is returned when a payment event disagrees with the
	// recorded sale about amount or currency.
	ErrAmountMismatch = errors.New("sale_amount_mismatch")
	// ErrLinkMismatch is returned when a payment event names a different
	// referral link than the recorded sale.
	ErrLinkMismatch = errors.New("sale_referral_link_mismatch")
	// ErrSelfReferral is returned when policy rejects buying through one's
	// own link.
	ErrSelfReferral = errors.New("self_referral_not_allowed")
)
