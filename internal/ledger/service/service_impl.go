package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/clock"
	ledgerdomain "github.com/smallbiznis/nodeboss/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: clk,
	}
}

func (s *Service) EnsureAccounts(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	if orgID == 0 {
		return ledgerdomain.ErrInvalidOrganization
	}
	now := s.clock.Now().UTC()
	for _, account := range ledgerdomain.DefaultAccounts {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_accounts (id, org_id, code, type, name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (org_id, code) DO NOTHING`,
			s.genID.Generate(),
			orgID,
			string(account.Code),
			string(account.Type),
			account.Name,
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

// PostTx writes an entry and its lines inside tx. It reports false when an
// entry for the same source already exists.
func (s *Service) PostTx(
	ctx context.Context,
	tx *gorm.DB,
	orgID snowflake.ID,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID snowflake.ID,
	currency string,
	occurredAt time.Time,
	lines []ledgerdomain.LedgerEntryLine,
) (bool, error) {
	if orgID == 0 {
		return false, ledgerdomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(string(sourceType)) == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if sourceID == 0 {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if occurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(lines) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.LedgerEntryLine, 0, len(lines))
	for _, line := range lines {
		if line.AccountID == 0 {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return false, err
		}
		if line.Amount <= 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		lineCurrency := strings.ToUpper(strings.TrimSpace(line.Currency))
		if lineCurrency == "" {
			lineCurrency = currency
		}
		normalized = append(normalized, ledgerdomain.LedgerEntryLine{
			AccountID: line.AccountID,
			Direction: direction,
			Currency:  lineCurrency,
			Amount:    line.Amount,
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	entryID := s.genID.Generate()
	now := s.clock.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, org_id, source_type, source_id, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, source_type, source_id) DO NOTHING`,
		entryID,
		orgID,
		string(sourceType),
		sourceID,
		currency,
		occurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	for _, line := range normalized {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_id, direction, currency, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			line.AccountID,
			string(line.Direction),
			line.Currency,
			line.Amount,
			now,
		).Error; err != nil {
			return false, err
		}
	}

	s.log.Debug("ledger entry posted",
		zap.String("org_id", orgID.String()),
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", sourceID.String()),
	)
	return true, nil
}

// PostCommissionTx books amount as commission expense owed to earners. A
// negative amount reverses the pair; zero posts nothing.
func (s *Service) PostCommissionTx(
	ctx context.Context,
	tx *gorm.DB,
	orgID snowflake.ID,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID snowflake.ID,
	currency string,
	occurredAt time.Time,
	amount int64,
) (bool, error) {
	if amount == 0 {
		return false, nil
	}
	if err := s.EnsureAccounts(ctx, tx, orgID); err != nil {
		return false, err
	}

	expenseID, err := s.accountID(ctx, tx, orgID, ledgerdomain.AccountCodeCommissionExpense)
	if err != nil {
		return false, err
	}
	payableID, err := s.accountID(ctx, tx, orgID, ledgerdomain.AccountCodeCommissionsPayable)
	if err != nil {
		return false, err
	}

	debitAccount, creditAccount := expenseID, payableID
	if amount < 0 {
		debitAccount, creditAccount = payableID, expenseID
		amount = -amount
	}

	return s.PostTx(ctx, tx, orgID, sourceType, sourceID, currency, occurredAt, []ledgerdomain.LedgerEntryLine{
		{AccountID: debitAccount, Direction: ledgerdomain.LedgerEntryDirectionDebit, Currency: currency, Amount: amount},
		{AccountID: creditAccount, Direction: ledgerdomain.LedgerEntryDirectionCredit, Currency: currency, Amount: amount},
	})
}

// Balance returns debits minus credits for an account in one currency.
func (s *Service) Balance(ctx context.Context, orgID snowflake.ID, code ledgerdomain.LedgerAccountCode, currency string) (int64, error) {
	var row struct {
		Debit  int64
		Credit int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE 0 END), 0) AS debit,
			COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE 0 END), 0) AS credit
		 FROM ledger_entry_lines l
		 JOIN ledger_accounts a ON a.id = l.account_id
		 WHERE a.org_id = ? AND a.code = ? AND l.currency = ?`,
		orgID,
		string(code),
		strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Debit - row.Credit, nil
}

func (s *Service) accountID(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code ledgerdomain.LedgerAccountCode) (snowflake.ID, error) {
	var account ledgerdomain.LedgerAccount
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, code, type, name, created_at
		 FROM ledger_accounts WHERE org_id = ? AND code = ?`,
		orgID,
		string(code),
	).Scan(&account).Error; err != nil {
		return 0, err
	}
	if account.ID == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return account.ID, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
