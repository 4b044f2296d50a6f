package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (*ReferralLink, error)
	Resolve(ctx context.Context, code string) (*Resolution, error)
	GetByID(ctx context.Context, id string) (*ReferralLink, error)
	List(ctx context.Context, req ListLinkRequest) (ListLinkResponse, error)
	SetStatus(ctx context.Context, id string, status string) (*ReferralLink, error)
	UpdatePercentage(ctx context.Context, id string, pct decimal.Decimal) (*ReferralLink, error)
}

type CreateLinkRequest struct {
	OwnerUserID          string           `json:"owner_user_id"`
	TargetType           string           `json:"target_type"`
	TargetID             string           `json:"target_id"`
	CommissionPercentage *decimal.Decimal `json:"commission_percentage"`
}

type ListLinkRequest struct {
	pagination.Pagination
	OwnerUserID string
	Status      string
	TargetType  string
}

type ListLinkResponse struct {
	pagination.PageInfo
	Links []ReferralLink `json:"links"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidLink         = errors.New("invalid_referral_link")
	ErrInvalidCode         = errors.New("invalid_referral_code")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidTarget       = errors.New("invalid_target")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidPercentage   = errors.New("invalid_commission_percentage")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrOwnerNotFound       = errors.New("owner_not_found")
	// ErrNotFound is returned when no link carries the code or id.
	ErrNotFound = errors.New("referral_link_not_found")
	// ErrInactiveLink is returned when the link exists but is disabled.
	ErrInactiveLink = errors.New("referral_link_inactive")
)
