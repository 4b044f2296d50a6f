package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	authdomain "github.com/smallbiznis/nodeboss/internal/auth/domain"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	orgdomain "github.com/smallbiznis/nodeboss/internal/organization/domain"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	reportingdomain "github.com/smallbiznis/nodeboss/internal/reporting/domain"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	webhookdomain "github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isOneOf(err,
		ErrUnauthorized,
		authdomain.ErrInvalidCredentials,
		authdomain.ErrUnauthorized,
		webhookdomain.ErrInvalidSignature,
		webhookdomain.ErrSignatureExpired,
	):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
			Code:    codeOf(err),
		}
	case isOneOf(err, ErrForbidden, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, referraldomain.ErrInactiveLink):
		return http.StatusGone, errorPayload{
			Type:    "inactive_link",
			Message: "referral link is inactive",
			Code:    referraldomain.ErrInactiveLink.Error(),
		}
	case isOneOf(err,
		ErrConflict,
		userdomain.ErrEmailTaken,
		orgdomain.ErrSlugTaken,
		saledomain.ErrInvalidTransition,
		saledomain.ErrAmountMismatch,
		saledomain.ErrLinkMismatch,
		saledomain.ErrSelfReferral,
		webhookdomain.ErrDeliveryInProgress,
	):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    codeOf(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    codeOf(err),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isOneOf(err,
		ErrServiceUnavailable,
		commissiondomain.ErrAtomicWrite,
		webhookdomain.ErrNotConfigured,
		reportingdomain.ErrStatementDisabled,
	):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if payload.Code != "" {
		return payload.Type, payload.Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func codeOf(err error) string {
	for _, known := range knownCodes {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ""
}

var knownCodes = []error{
	authdomain.ErrInvalidCredentials,
	webhookdomain.ErrInvalidSignature,
	webhookdomain.ErrSignatureExpired,
	webhookdomain.ErrDeliveryInProgress,
	webhookdomain.ErrOrganizationNotFound,
	userdomain.ErrEmailTaken,
	userdomain.ErrNotFound,
	userdomain.ErrReferrerNotFound,
	orgdomain.ErrSlugTaken,
	saledomain.ErrInvalidTransition,
	saledomain.ErrAmountMismatch,
	saledomain.ErrLinkMismatch,
	saledomain.ErrSelfReferral,
	saledomain.ErrNotFound,
	saledomain.ErrBuyerNotFound,
	referraldomain.ErrNotFound,
	referraldomain.ErrOwnerNotFound,
	commissiondomain.ErrNotFound,
	commissiondomain.ErrUserNotFound,
	commissiondomain.ErrSaleNotFound,
	reportingdomain.ErrLinkNotFound,
	reportingdomain.ErrUserNotFound,
}

var validationErrors = []error{
	ErrInvalidRequest,
	userdomain.ErrInvalidOrganization,
	userdomain.ErrInvalidUser,
	userdomain.ErrInvalidName,
	userdomain.ErrInvalidEmail,
	userdomain.ErrInvalidRole,
	userdomain.ErrInvalidPassword,
	userdomain.ErrInvalidPercentage,
	userdomain.ErrInvalidPageToken,
	userdomain.ErrReferralCycle,
	referraldomain.ErrInvalidOrganization,
	referraldomain.ErrInvalidLink,
	referraldomain.ErrInvalidCode,
	referraldomain.ErrInvalidOwner,
	referraldomain.ErrInvalidTarget,
	referraldomain.ErrInvalidStatus,
	referraldomain.ErrInvalidPercentage,
	referraldomain.ErrInvalidPageToken,
	saledomain.ErrInvalidOrganization,
	saledomain.ErrInvalidSale,
	saledomain.ErrInvalidLink,
	saledomain.ErrInvalidBuyer,
	saledomain.ErrInvalidAmount,
	saledomain.ErrInvalidCurrency,
	saledomain.ErrInvalidExternalID,
	saledomain.ErrInvalidStatus,
	saledomain.ErrInvalidTimeRange,
	saledomain.ErrInvalidPageToken,
	commissiondomain.ErrInvalidOrganization,
	commissiondomain.ErrInvalidTransaction,
	commissiondomain.ErrInvalidUser,
	commissiondomain.ErrInvalidSale,
	commissiondomain.ErrInvalidLink,
	commissiondomain.ErrInvalidSource,
	commissiondomain.ErrInvalidAmount,
	commissiondomain.ErrInvalidCurrency,
	commissiondomain.ErrInvalidTimeRange,
	commissiondomain.ErrInvalidPageToken,
	reportingdomain.ErrInvalidOrganization,
	reportingdomain.ErrInvalidLink,
	reportingdomain.ErrInvalidUser,
	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	webhookdomain.ErrInvalidOrganization,
	webhookdomain.ErrInvalidPayload,
	webhookdomain.ErrInvalidEvent,
	webhookdomain.ErrUnsupportedEventType,
}

func isValidationError(err error) bool {
	return isOneOf(err, validationErrors...)
}

func isNotFoundError(err error) bool {
	return isOneOf(err,
		ErrNotFound,
		userdomain.ErrNotFound,
		userdomain.ErrReferrerNotFound,
		referraldomain.ErrNotFound,
		referraldomain.ErrOwnerNotFound,
		saledomain.ErrNotFound,
		saledomain.ErrBuyerNotFound,
		commissiondomain.ErrNotFound,
		commissiondomain.ErrUserNotFound,
		commissiondomain.ErrSaleNotFound,
		reportingdomain.ErrLinkNotFound,
		reportingdomain.ErrUserNotFound,
		orgdomain.ErrNotFound,
		webhookdomain.ErrOrganizationNotFound,
		gorm.ErrRecordNotFound,
	)
}

func validationErrorCode(err error) string {
	for _, known := range validationErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case userdomain.ErrReferralCycle.Error():
		return "referrer would create a cycle"
	default:
		return "invalid value"
	}
}
