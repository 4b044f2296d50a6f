package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventSaleCompleted = "sale.completed"
	EventSaleFailed    = "sale.failed"
	EventSaleCanceled  = "sale.canceled"
)

// Outcome is what a processed delivery did to the sale.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// SaleEvent is one inbound delivery, keyed by the sender's event id.
type SaleEvent struct {
	ID                    snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID                 snowflake.ID   `json:"org_id"`
	ProviderEventID       string         `json:"provider_event_id"`
	EventType             string         `json:"event_type"`
	ExternalTransactionID string         `json:"external_transaction_id"`
	Payload               datatypes.JSON `json:"payload"`
	Outcome               *string        `json:"outcome,omitempty"`
	ReceivedAt            time.Time      `json:"received_at"`
	ProcessedAt           *time.Time     `json:"processed_at,omitempty"`
}

func (SaleEvent) TableName() string { return "sale_events" }

type Envelope struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ReferralCode          string `json:"referral_code"`
	ReferralLinkID        string `json:"referral_link_id"`
	BuyerID               string `json:"buyer_id"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	ExternalTransactionID string `json:"external_transaction_id"`
}

// Result is returned for every acknowledged delivery.
type Result struct {
	EventID string  `json:"event_id"`
	Outcome Outcome `json:"outcome"`
	SaleID  string  `json:"sale_id,omitempty"`
}
