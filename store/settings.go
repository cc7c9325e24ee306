package store

import (
	"database/sql"
	"errors"
	"time"
)

const (
	settingActiveProject = "active_project"
	settingLastRefresh   = "last_refresh"
)

// projectScopedTables are cleared when the active project changes.
var projectScopedTables = []string{
	TableStockLevels,
	TableLedgerEntries,
	TableAttendance,
	TableRequisitions,
	TableRequisitionItems,
	TableActiveLoans,
	TableSiteLogs,
}

func (db *DB) GetSetting(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("get setting", err)
	}
	return v, nil
}

func (db *DB) SetSetting(key, value string) error {
	_, err := db.exec("set setting", []string{TableSettings},
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func setSetting(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// ActiveProject returns the persisted project selection ("" when none).
func (db *DB) ActiveProject() (string, error) {
	return db.GetSetting(settingActiveProject)
}

// SwitchProject persists a new active project and invalidates every
// project-scoped mirror table. Queued mutations are kept; they carry their
// own project id. Switching to the current project is a no-op that reports false.
func (db *DB) SwitchProject(projectID string) (bool, error) {
	current, err := db.ActiveProject()
	if err != nil {
		return false, err
	}
	if current == projectID {
		return false, nil
	}
	tables := append([]string{TableSettings}, projectScopedTables...)
	err = db.WithTx(tables, func(tx *sql.Tx) error {
		if err := setSetting(tx, settingActiveProject, projectID); err != nil {
			return storageErr("switch project", err)
		}
		if err := setSetting(tx, settingLastRefresh, ""); err != nil {
			return storageErr("switch project", err)
		}
		for _, t := range projectScopedTables {
			if _, err := tx.Exec(`DELETE FROM ` + t); err != nil {
				return storageErr("switch project: clear "+t, err)
			}
		}
		return nil
	})
	return err == nil, err
}

// LastRefresh returns when the mirror was last replaced by a snapshot.
func (db *DB) LastRefresh() (time.Time, error) {
	v, err := db.GetSetting(settingLastRefresh)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return scanTime(v), nil
}
