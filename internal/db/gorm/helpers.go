// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"database/sql"
	"time"
)

// nullString creates a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64 creates a sql.NullInt64 from an int64.
func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

// fromNullString returns the string value or "".
func fromNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// fromNullInt64 returns the int64 value or 0.
func fromNullInt64(ni sql.NullInt64) int64 {
	if ni.Valid {
		return ni.Int64
	}
	return 0
}

// stamp formats t as the paired RFC3339 string and epoch-ms columns.
func stamp(t time.Time) (string, int64) {
	return t.Format(time.RFC3339), t.UnixMilli()
}
