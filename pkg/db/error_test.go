package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", gorm.ErrDuplicatedKey, true},
		{"pg code", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pg message", errors.New(`ERROR: duplicate key value violates unique constraint "sales_pkey"`), true},
		{"mysql", errors.New("Error 1062: Duplicate entry"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: sales.external_transaction_id"), true},
		{"other", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDuplicateKeyOn(t *testing.T) {
	pgCode := &pgconn.PgError{Code: "23505", ConstraintName: "users_org_referral_code_key"}
	if !DuplicateKeyOn(fmt.Errorf("insert user: %w", pgCode), "referral_code") {
		t.Fatalf("expected postgres constraint name to match")
	}
	if DuplicateKeyOn(pgCode, "email") {
		t.Fatalf("email must not match the referral code constraint")
	}

	sqlite := errors.New("UNIQUE constraint failed: users.org_id, users.email")
	if !DuplicateKeyOn(sqlite, "email") || DuplicateKeyOn(sqlite, "referral_code") {
		t.Fatalf("sqlite column match is wrong")
	}
	if DuplicateKeyOn(errors.New("connection refused"), "email") {
		t.Fatalf("non unique errors never match")
	}
}
