package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

const (
	ActionPayoutCapped           = "commission.payout_capped"
	ActionPendingReconciliation  = "commission.pending_reconciliation"
	ActionAdjustmentCreated      = "commission.adjustment_created"
	ActionSelfReferral           = "commission.self_referral"
	ActionReferralLinkStatus     = "referral_link.status_changed"
	ActionReferralLinkPercentage = "referral_link.percentage_changed"
	ActionUserBigBossChanged     = "user.big_boss_changed"
	ActionUserReferrerChanged    = "user.referrer_changed"
	ActionUserLogin              = "user.login"
	ActionUserLoginFailed        = "user.login_failed"
	ActionAuthorizationGranted   = "authorization.granted"
	ActionAuthorizationDenied    = "authorization.denied"
)

// AuditLog is an append-only record of a sensitive change.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      *snowflake.ID     `json:"org_id,omitempty"`
	ActorType  string            `json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
