package domain

import (
	"context"
	"errors"
)

type Service interface {
	LinkSummary(ctx context.Context, linkID string) (*LinkSummary, error)
	UserSummary(ctx context.Context, userID string) (*UserSummary, error)
	// Statement renders a user's earnings statement as a PDF document.
	Statement(ctx context.Context, userID string) ([]byte, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidLink         = errors.New("invalid_referral_link")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrLinkNotFound        = errors.New("referral_link_not_found")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrStatementDisabled   = errors.New("statement_renderer_unavailable")
)
