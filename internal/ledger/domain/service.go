package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service posts balanced entries. Posting methods take the caller's
// transaction so entries commit or roll back with the rows they describe.
type Service interface {
	EnsureAccounts(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error
	PostTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, sourceType LedgerSourceType, sourceID snowflake.ID, currency string, occurredAt time.Time, lines []LedgerEntryLine) (bool, error)
	PostCommissionTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, sourceType LedgerSourceType, sourceID snowflake.ID, currency string, occurredAt time.Time, amount int64) (bool, error)
	Balance(ctx context.Context, orgID snowflake.ID, code LedgerAccountCode, currency string) (int64, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrCurrencyMismatch     = errors.New("currency_mismatch")
)

// ValidateBalanced checks that debits equal credits in a single currency.
func ValidateBalanced(lines []LedgerEntryLine) error {
	var debit, credit int64
	currency := ""
	for _, line := range lines {
		if currency == "" {
			currency = line.Currency
		} else if line.Currency != currency {
			return ErrCurrencyMismatch
		}
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
