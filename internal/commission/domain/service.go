package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// Settle computes and writes the commission rows for a completed sale
	// inside tx. The returned plan is valid alongside ErrPayoutLimitExceeded.
	// ErrReconciliationRequired means nothing was written.
	Settle(ctx context.Context, tx *gorm.DB, sale SaleRef, policy config.Policy) (Plan, error)
	CreateAdjustment(ctx context.Context, req CreateAdjustmentRequest) (*CommissionTransaction, error)
	GetByID(ctx context.Context, id string) (*CommissionTransaction, error)
	List(ctx context.Context, req ListCommissionRequest) (ListCommissionResponse, error)
}

type CreateAdjustmentRequest struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	RelatedSaleID string `json:"related_sale_id"`
	Description   string `json:"description"`
}

type ListCommissionRequest struct {
	pagination.Pagination
	UserID         string
	ReferralLinkID string
	RelatedSaleID  string
	Source         string
	StartAt        *time.Time
	EndAt          *time.Time
}

type ListCommissionResponse struct {
	pagination.PageInfo
	Transactions []CommissionTransaction `json:"transactions"`
}
