package authorization

import (
	"context"
	"errors"
)

// Service checks whether an actor may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
	Allowed(role string, object string, action string) bool
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

const (
	RoleAdmin        = "admin"
	RoleOrganization = "organization"
	RoleUser         = "user"
	RoleSystem       = "system"
)

// SystemActor is the subject used by webhook dispatch and scheduled jobs.
const SystemActor = "system"
