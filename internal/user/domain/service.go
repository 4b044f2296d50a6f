package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context, req ListUserRequest) (ListUserResponse, error)
	SetReferrer(ctx context.Context, userID string, referrerID string) (*User, error)
	SetBigBoss(ctx context.Context, userID string, req SetBigBossRequest) (*User, error)
	// Ancestors walks referred_by upward from userID's referrer, returning at
	// most limit users nearest first. It reads through db so callers can run
	// it inside their own transaction.
	Ancestors(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, limit int) ([]User, error)
}

type CreateUserRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ReferrerCode string `json:"referrer_code"`
	Password     string `json:"password"`
}

type ListUserRequest struct {
	pagination.Pagination
	Role       string
	IsBigBoss  *bool
	ReferredBy string
}

type ListUserResponse struct {
	pagination.PageInfo
	Users []User `json:"users"`
}

type SetBigBossRequest struct {
	Enabled            bool            `json:"enabled"`
	OverridePercentage decimal.Decimal `json:"override_percentage"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidPassword     = errors.New("invalid_password")
	ErrInvalidPercentage   = errors.New("invalid_override_percentage")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrEmailTaken          = errors.New("email_taken")
	ErrNotFound            = errors.New("user_not_found")
	ErrReferrerNotFound    = errors.New("referrer_not_found")
	ErrReferralCycle       = errors.New("referral_cycle")
)
