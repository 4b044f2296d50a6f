package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidTransaction  = errors.New("invalid_commission_transaction")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidSale         = errors.New("invalid_sale")
	ErrInvalidLink         = errors.New("invalid_referral_link")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidRate         = errors.New("invalid_commission_rate")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrSaleNotFound        = errors.New("sale_not_found")
	ErrNotFound            = errors.New("commission_transaction_not_found")

	// ErrDuplicateTransaction reports that a sale was already settled. Callers
	// treat it as success.
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	// ErrPayoutLimitExceeded reports that the plan was truncated by the cap.
	ErrPayoutLimitExceeded = errors.New("payout_limit_exceeded")
	// ErrReconciliationRequired marks a sale whose commissions could not be
	// computed from the stored hierarchy and need an operator.
	ErrReconciliationRequired = errors.New("commission_reconciliation_required")
	ErrAtomicWrite            = errors.New("atomic_write_failed")
)

// AtomicWriteError wraps a database failure that rolled back a settlement.
type AtomicWriteError struct {
	Op  string
	Err error
}

func (e *AtomicWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrAtomicWrite.Error(), e.Op, e.Err)
}

func (e *AtomicWriteError) Unwrap() error {
	return e.Err
}

func (e *AtomicWriteError) Is(target error) bool {
	return target == ErrAtomicWrite
}

func NewAtomicWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AtomicWriteError{Op: op, Err: err}
}
