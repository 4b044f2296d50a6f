package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeSaleCommission       LedgerSourceType = "sale_commission"       // direct + override rows of one sale
	SourceTypeCommissionAdjustment LedgerSourceType = "commission_adjustment" // manual correction row
)

type LedgerAccountCode string

const (
	AccountCodeCommissionExpense  LedgerAccountCode = "commission_expense"
	AccountCodeCommissionsPayable LedgerAccountCode = "commissions_payable"
)

type LedgerAccountType string

const (
	AccountTypeExpense   LedgerAccountType = "expense"
	AccountTypeLiability LedgerAccountType = "liability"
)

// DefaultAccounts is the chart of accounts every organization carries.
var DefaultAccounts = []struct {
	Code LedgerAccountCode
	Type LedgerAccountType
	Name string
}{
	{AccountCodeCommissionExpense, AccountTypeExpense, "Commission Expense"},
	{AccountCodeCommissionsPayable, AccountTypeLiability, "Commissions Payable"},
}

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	OrgID     snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_ledger_accounts_org_code,priority:1"`
	Code      LedgerAccountCode `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_org_code,priority:2"`
	Type      LedgerAccountType `gorm:"type:text;not null"`
	Name      string            `gorm:"type:text;not null"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	OrgID      snowflake.ID     `gorm:"not null;index"`
	SourceType LedgerSourceType `gorm:"type:text;not null;index"`
	SourceID   snowflake.ID     `gorm:"not null;index"`
	Currency   string           `gorm:"type:text;not null"`
	OccurredAt time.Time        `gorm:"not null"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Currency      string               `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }
