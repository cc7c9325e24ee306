package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Table names, shared with live-query subscribers.
const (
	TableProjects         = "projects"
	TableCatalogItems     = "catalog_items"
	TableStockLevels      = "stock_levels"
	TableLedgerEntries    = "ledger_entries"
	TablePendingMutations = "pending_mutations"
	TableEmployees        = "employees"
	TableAttendance       = "attendance"
	TableRequisitions     = "requisitions"
	TableRequisitionItems = "requisition_items"
	TableActiveLoans      = "active_loans"
	TableSiteLogs         = "site_logs"
	TableSettings         = "settings"
)

// MirrorTables are the tables fully owned by snapshot downloads.
var MirrorTables = []string{
	TableProjects,
	TableCatalogItems,
	TableStockLevels,
	TableLedgerEntries,
	TableEmployees,
	TableAttendance,
	TableRequisitions,
	TableRequisitionItems,
	TableActiveLoans,
	TableSiteLogs,
}

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are strictly additive: later steps add tables, columns, or
// indexes and never drop or retype anything that could hold data.
var migrations = []migration{
	{1, "inventory mirror", []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id                TEXT PRIMARY KEY,
			sku               TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL DEFAULT '',
			unit              TEXT NOT NULL DEFAULT '',
			unit_price        TEXT NOT NULL DEFAULT '0',
			reorder_threshold TEXT NOT NULL DEFAULT '0',
			supplier          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS stock_levels (
			project_id TEXT NOT NULL,
			item_id    TEXT NOT NULL,
			quantity   TEXT NOT NULL DEFAULT '0',
			PRIMARY KEY (project_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id           TEXT PRIMARY KEY,
			project_id   TEXT NOT NULL,
			item_id      TEXT NOT NULL,
			quantity     TEXT NOT NULL,
			kind         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			actor_id     TEXT NOT NULL DEFAULT '',
			evidence_url TEXT NOT NULL DEFAULT '',
			notes        TEXT NOT NULL DEFAULT '',
			item_name    TEXT NOT NULL DEFAULT '',
			item_unit    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_project ON ledger_entries(project_id, created_at)`,
	}},
	{2, "mutation queue", []string{
		`CREATE TABLE IF NOT EXISTS pending_mutations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ref TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			item_id    TEXT NOT NULL,
			delta      TEXT NOT NULL,
			payload    BLOB NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			attempts   INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mutations_status ON pending_mutations(status, id)`,
	}},
	{3, "workforce", []string{
		`CREATE TABLE IF NOT EXISTS employees (
			id          TEXT PRIMARY KEY,
			full_name   TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL DEFAULT '',
			national_id TEXT NOT NULL DEFAULT '',
			daily_rate  TEXT NOT NULL DEFAULT '0',
			project_id  TEXT NOT NULL DEFAULT '',
			active      INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL DEFAULT '',
			employee_id    TEXT NOT NULL,
			work_date      TEXT NOT NULL,
			check_in_time  TEXT NOT NULL DEFAULT '',
			check_out_time TEXT NOT NULL DEFAULT '',
			check_in_gps   TEXT NOT NULL DEFAULT '',
			check_out_gps  TEXT NOT NULL DEFAULT '',
			employee_name  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(work_date)`,
	}},
	{4, "requisitions and loans", []string{
		`CREATE TABLE IF NOT EXISTS requisitions (
			id           TEXT PRIMARY KEY,
			project_id   TEXT NOT NULL,
			requested_by TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'PENDING',
			created_at   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS requisition_items (
			id                 TEXT PRIMARY KEY,
			requisition_id     TEXT NOT NULL,
			item_id            TEXT NOT NULL,
			quantity_requested TEXT NOT NULL DEFAULT '0',
			quantity_received  TEXT NOT NULL DEFAULT '0',
			item_name          TEXT NOT NULL DEFAULT '',
			item_unit          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requisition_items_req ON requisition_items(requisition_id)`,
		`CREATE TABLE IF NOT EXISTS active_loans (
			id            TEXT PRIMARY KEY,
			project_id    TEXT NOT NULL,
			item_id       TEXT NOT NULL,
			employee_id   TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			created_by    TEXT NOT NULL DEFAULT '',
			item_name     TEXT NOT NULL DEFAULT '',
			employee_name TEXT NOT NULL DEFAULT ''
		)`,
	}},
	{5, "site log", []string{
		`CREATE TABLE IF NOT EXISTS site_logs (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			author_id   TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT ''
		)`,
	}},
	{6, "catalog details and error kinds", []string{
		`ALTER TABLE catalog_items ADD COLUMN description TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE catalog_items ADD COLUMN kind TEXT NOT NULL DEFAULT 'consumable'`,
		`ALTER TABLE ledger_entries ADD COLUMN item_sku TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE pending_mutations ADD COLUMN last_error_kind TEXT NOT NULL DEFAULT ''`,
	}},
}

// LatestVersion is the schema version Open migrates to.
var LatestVersion = migrations[len(migrations)-1].version

// SchemaVersion returns the highest applied migration version (0 for a new file).
func (db *DB) SchemaVersion() (int, error) {
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, storageErr("schema version", err)
	}
	return v, nil
}

// Migrate applies, in order, every migration above the current version up to
// and including toVersion. Each step runs in its own transaction together
// with its bookkeeping row.
func (db *DB) Migrate(toVersion int) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return storageErr("create schema_migrations", err)
	}
	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	if toVersion < current {
		return storageErr("migrate", fmt.Errorf("database is at version %d, newer than %d", current, toVersion))
	}

	for _, m := range migrations {
		if m.version <= current || m.version > toVersion {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return storageErr("migrate", err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return storageErr(fmt.Sprintf("migration %d (%s)", m.version, m.name), err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, time.Now().UTC().Format(timeLayout)); err != nil {
			tx.Rollback()
			return storageErr("migrate", err)
		}
		if err := tx.Commit(); err != nil {
			return storageErr("migrate", err)
		}
		db.log.Info("applied migration", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return nil
}
