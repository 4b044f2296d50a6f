package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceReferralSale Source = "referral_sale"
	SourceOverride     Source = "override"
	SourceManual       Source = "manual"
)

func ParseSource(raw string) (Source, bool) {
	switch Source(raw) {
	case SourceReferralSale, SourceOverride, SourceManual:
		return Source(raw), true
	default:
		return "", false
	}
}

// CommissionTransaction is immutable once written. Corrections are new
// manual rows that offset earlier ones.
type CommissionTransaction struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID    `json:"org_id"`
	UserID         snowflake.ID    `json:"user_id"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Source         Source          `json:"source"`
	RelatedSaleID  *snowflake.ID   `json:"related_sale_id,omitempty"`
	ReferralLinkID *snowflake.ID   `json:"referral_link_id,omitempty"`
	Level          int             `json:"level"`
	RatePercent    decimal.Decimal `json:"rate_percent"`
	Description    *string         `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (CommissionTransaction) TableName() string { return "commission_transactions" }

// SaleRef carries the sale fields settlement needs.
type SaleRef struct {
	ID             snowflake.ID
	OrgID          snowflake.ID
	ReferralLinkID snowflake.ID
	AmountInvested int64
	Currency       string
	SoldAt         time.Time
}
