package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleOrganization Role = "organization"
	RoleUser         Role = "user"
)

// User is a participant in the referral hierarchy. ReferredBy points at the
// user who recruited them and is the edge walked for override commissions.
type User struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID    `json:"org_id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	Role               Role            `json:"role"`
	ReferralCode       string          `json:"referral_code"`
	ReferredBy         *snowflake.ID   `json:"referred_by,omitempty"`
	IsBigBoss          bool            `json:"is_big_boss"`
	OverridePercentage decimal.Decimal `json:"override_percentage"`
	PasswordHash       *string         `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// EligibleForOverride reports whether the user earns override commission
// when a downline sale walks past them.
func (u User) EligibleForOverride() bool {
	return u.IsBigBoss && u.OverridePercentage.IsPositive()
}

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOrganization:
		return RoleOrganization, true
	case RoleUser:
		return RoleUser, true
	default:
		return "", false
	}
}

const referralCodePrefixLen = 12

// NewReferralCode builds a human readable, collision resistant code such as
// "jane-doe-7k2m9q".
func NewReferralCode(name string) string {
	prefix := slug.Make(name)
	if len(prefix) > referralCodePrefixLen {
		prefix = strings.Trim(prefix[:referralCodePrefixLen], "-")
	}
	id := strings.ToLower(ulid.Make().String())
	suffix := id[len(id)-6:]
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}
