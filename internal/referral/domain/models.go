package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusInactive LinkStatus = "inactive"
)

// ReferralLink attributes sales to its owner. CommissionPercentage applies
// to sales completed after it was set; settled rows keep their own snapshot.
type ReferralLink struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID                snowflake.ID    `json:"org_id"`
	OwnerUserID          snowflake.ID    `json:"owner_user_id"`
	Code                 string          `json:"code"`
	TargetType           string          `json:"target_type"`
	TargetID             string          `json:"target_id"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	Status               LinkStatus      `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (ReferralLink) TableName() string { return "referral_links" }

func (l ReferralLink) IsActive() bool {
	return l.Status == LinkStatusActive
}

// Owner is the public view of a link owner returned on resolution.
type Owner struct {
	ID           snowflake.ID `json:"id"`
	Name         string       `json:"name"`
	ReferralCode string       `json:"referral_code"`
}

// Resolution is the result of resolving a code to an attributable link.
type Resolution struct {
	Link  ReferralLink `json:"link"`
	Owner Owner        `json:"owner"`
}

func ParseStatus(raw string) (LinkStatus, bool) {
	switch LinkStatus(raw) {
	case LinkStatusActive:
		return LinkStatusActive, true
	case LinkStatusInactive:
		return LinkStatusInactive, true
	default:
		return "", false
	}
}
