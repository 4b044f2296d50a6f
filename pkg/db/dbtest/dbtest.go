// Package dbtest opens an in-memory sqlite database carrying the service schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a fresh database for the test. Each call gets its own
// in-memory file so parallel packages never share rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Node returns a snowflake node for generating ids in tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

var schema = []string{
	`CREATE TABLE organizations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		referral_code TEXT NOT NULL,
		referred_by INTEGER NULL,
		is_big_boss BOOLEAN NOT NULL DEFAULT 0,
		override_percentage TEXT NOT NULL DEFAULT '0',
		password_hash TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (org_id, email),
		UNIQUE (org_id, referral_code)
	)`,
	`CREATE TABLE referral_links (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		owner_user_id INTEGER NOT NULL,
		code TEXT NOT NULL UNIQUE,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		commission_percentage TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE sales (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		referral_link_id INTEGER NOT NULL,
		buyer_user_id INTEGER NULL,
		amount_invested INTEGER NOT NULL CHECK (amount_invested >= 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		commission_status TEXT NOT NULL DEFAULT 'none',
		external_transaction_id TEXT NOT NULL,
		sold_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (org_id, external_transaction_id)
	)`,
	`CREATE TABLE commission_transactions (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		source TEXT NOT NULL,
		related_sale_id INTEGER NULL,
		referral_link_id INTEGER NULL,
		level INTEGER NOT NULL DEFAULT 0,
		rate_percent TEXT NOT NULL DEFAULT '0',
		description TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX commission_transactions_sale_user_source_key
		ON commission_transactions (org_id, related_sale_id, user_id, source)
		WHERE source <> 'manual'`,
	`CREATE TABLE ledger_accounts (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (org_id, code)
	)`,
	`CREATE TABLE ledger_entries (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (org_id, source_type, source_id)
	)`,
	`CREATE TABLE ledger_entry_lines (
		id INTEGER PRIMARY KEY,
		ledger_entry_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL,
		direction TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE sale_events (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		external_transaction_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		outcome TEXT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME NULL,
		UNIQUE (org_id, provider_event_id)
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NULL,
		metadata TEXT NULL,
		ip_address TEXT NULL,
		user_agent TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
}
