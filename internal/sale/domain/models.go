package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
	// StatusExpired marks a pending sale the scheduler gave up waiting on.
	// A late gateway confirmation still completes it.
	StatusExpired Status = "expired"
)

// OpenStatuses are the statuses a gateway event may still close.
var OpenStatuses = []Status{StatusPending, StatusExpired}

func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusExpired
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusCompleted, StatusCanceled, StatusFailed, StatusExpired:
		return Status(raw), true
	default:
		return "", false
	}
}

// CommissionStatus records how commissions were settled for a completed sale.
type CommissionStatus string

const (
	CommissionStatusNone                  CommissionStatus = "none"
	CommissionStatusSettled               CommissionStatus = "settled"
	CommissionStatusCapped                CommissionStatus = "capped"
	CommissionStatusPendingReconciliation CommissionStatus = "pending_reconciliation"
	CommissionStatusSelfReferral          CommissionStatus = "self_referral"
)

// NeedsReview reports whether an operator should look at the sale's payout.
func (s CommissionStatus) NeedsReview() bool {
	return s == CommissionStatusCapped || s == CommissionStatusPendingReconciliation
}

type Sale struct {
	ID                    snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID                 snowflake.ID     `json:"org_id"`
	ReferralLinkID        snowflake.ID     `json:"referral_link_id"`
	BuyerUserID           *snowflake.ID    `json:"buyer_user_id,omitempty"`
	AmountInvested        int64            `json:"amount_invested"`
	Currency              string           `json:"currency"`
	Status                Status           `json:"status"`
	CommissionStatus      CommissionStatus `json:"commission_status"`
	ExternalTransactionID string           `json:"external_transaction_id"`
	SoldAt                *time.Time       `json:"sold_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func (Sale) TableName() string { return "sales" }
