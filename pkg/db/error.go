package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// uniqueMarkers are the unique-violation messages of drivers that do not
// surface a typed error (sqlite in tests, mysql).
var uniqueMarkers = []string{
	"duplicate key value violates unique constraint",
	"UNIQUE constraint failed",
	"Error 1062",
}

// IsDuplicateKeyErr reports a unique constraint violation from any driver.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	for _, marker := range uniqueMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// DuplicateKeyOn reports a unique violation whose constraint or column
// mentions column, e.g. "referral_code" for users_org_referral_code_key.
func DuplicateKeyOn(err error, column string) bool {
	if !IsDuplicateKeyErr(err) || column == "" {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return strings.Contains(pgErr.ConstraintName, column)
	}
	return strings.Contains(err.Error(), column)
}
