package domain

import (
	"context"
	"errors"
	"net/http"
)

const SignatureHeader = "X-Nodeboss-Signature"

type Service interface {
	// Ingest verifies, records and applies one signed sale event. A delivery
	// that was already applied returns a Result with OutcomeDuplicate.
	Ingest(ctx context.Context, orgID string, payload []byte, headers http.Header) (*Result, error)
}

var (
	ErrNotConfigured        = errors.New("webhook_secret_not_configured")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrSignatureExpired     = errors.New("signature_expired")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrUnsupportedEventType = errors.New("unsupported_event_type")
	ErrDeliveryInProgress   = errors.New("delivery_in_progress")
)
