package store

import (
	"database/sql"
	"time"
)

// timeLayout matches SQLite's datetime('now') output.
const timeLayout = "2006-01-02 15:04:05"

// stampLayout is fixed-width UTC so stored timestamps sort lexically.
const stampLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(stampLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func scanTime(s string) time.Time {
	for _, layout := range []string{stampLayout, time.RFC3339Nano, timeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := scanTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// exec runs a single write statement in its own transaction.
func (db *DB) exec(op string, tables []string, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := db.WithTx(tables, func(tx *sql.Tx) error {
		var err error
		res, err = tx.Exec(query, args...)
		return storageErr(op, err)
	})
	return res, err
}
