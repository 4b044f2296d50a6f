package domain

import (
	"github.com/bwmarrin/snowflake"
)

// LinkTotals are the completed-sale totals of one link in one currency.
type LinkTotals struct {
	Currency         string `json:"currency"`
	CompletedSales   int64  `json:"completed_sales"`
	SalesAmount      int64  `json:"sales_amount"`
	DirectAmount     int64  `json:"direct_commission_amount"`
	OverrideAmount   int64  `json:"override_commission_amount"`
	AdjustmentAmount int64  `json:"adjustment_amount"`
	CommissionAmount int64  `json:"commission_amount"`
}

type LinkSummary struct {
	LinkID      snowflake.ID `json:"link_id"`
	OwnerUserID snowflake.ID `json:"owner_user_id"`
	Code        string       `json:"code"`
	Totals      []LinkTotals `json:"totals"`
}

// UserTotals are a user's earnings and attributed sales in one currency.
type UserTotals struct {
	Currency            string `json:"currency"`
	CompletedSales      int64  `json:"completed_sales"`
	SalesAmount         int64  `json:"sales_amount"`
	DownlineSales       int64  `json:"downline_sales"`
	DownlineSalesAmount int64  `json:"downline_sales_amount"`
	DirectAmount        int64  `json:"direct_commission_amount"`
	OverrideAmount      int64  `json:"override_commission_amount"`
	AdjustmentAmount    int64  `json:"adjustment_amount"`
	TotalEarnings       int64  `json:"total_earnings"`
}

type UserSummary struct {
	UserID     snowflake.ID `json:"user_id"`
	Name       string       `json:"name"`
	LinksOwned int64        `json:"links_owned"`
	Totals     []UserTotals `json:"totals"`
}

// SalesRow and CommissionRow are raw aggregates grouped by currency.
type SalesRow struct {
	Currency string
	Count    int64
	Amount   int64
}

type CommissionRow struct {
	Currency string
	Source   string
	Amount   int64
}
