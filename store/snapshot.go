package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStaleSnapshot is returned when a snapshot was fetched for a project
// that is no longer active.
var ErrStaleSnapshot = errors.New("snapshot is for an inactive project")

// Snapshot is the complete authoritative working set for one project,
// already denormalized for display.
type Snapshot struct {
	ProjectID    string
	FetchedAt    time.Time
	Projects     []Project
	Items        []CatalogItem
	Stock        []StockLevel
	Ledger       []LedgerEntry
	Employees    []Employee
	Attendance   []Attendance
	Requisitions []Requisition
	Loans        []Loan
	SiteLogs     []SiteLog
}

// ReplaceResult describes a committed snapshot replacement.
type ReplaceResult struct {
	Rows    int
	Rebased int
}

// ReplaceSnapshot clears every mirror table and loads snap in a single
// transaction, then re-applies the deltas of mutations still queued for the
// snapshot's project so unsent local movements stay visible. On any error
// the previous mirror is left untouched.
func (db *DB) ReplaceSnapshot(snap *Snapshot) (ReplaceResult, error) {
	var res ReplaceResult
	tables := append([]string{TableSettings}, MirrorTables...)
	err := db.WithTx(tables, func(tx *sql.Tx) error {
		var active string
		err := tx.QueryRow(`SELECT value FROM settings WHERE key = ?`, settingActiveProject).Scan(&active)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return storageErr("replace snapshot", err)
		}
		if active != snap.ProjectID {
			return ErrStaleSnapshot
		}

		for _, t := range MirrorTables {
			if _, err := tx.Exec(`DELETE FROM ` + t); err != nil {
				return storageErr("replace snapshot: clear "+t, err)
			}
		}
		n, err := insertSnapshot(tx, snap)
		if err != nil {
			return storageErr("replace snapshot", err)
		}
		res.Rows = n

		if snap.ProjectID != "" {
			if res.Rebased, err = rebasePending(tx, snap.ProjectID); err != nil {
				return storageErr("replace snapshot", err)
			}
		}
		fetched := snap.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now()
		}
		return storageErr("replace snapshot", setSetting(tx, settingLastRefresh, formatTime(fetched)))
	})
	return res, err
}

func insertSnapshot(tx *sql.Tx, snap *Snapshot) (int, error) {
	n := 0
	for _, p := range snap.Projects {
		if _, err := tx.Exec(`INSERT INTO projects (id, name) VALUES (?, ?)`, p.ID, p.Name); err != nil {
			return n, fmt.Errorf("project %s: %w", p.ID, err)
		}
		n++
	}
	for _, c := range snap.Items {
		if _, err := tx.Exec(`INSERT INTO catalog_items (`+catalogSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.SKU, c.Name, c.Unit, c.UnitPrice, c.ReorderThreshold, c.Supplier, c.Description, itemKind(c.Kind)); err != nil {
			return n, fmt.Errorf("catalog item %s: %w", c.ID, err)
		}
		n++
	}
	for _, s := range snap.Stock {
		if _, err := tx.Exec(`INSERT INTO stock_levels (project_id, item_id, quantity) VALUES (?, ?, ?)`,
			s.ProjectID, s.ItemID, s.Quantity); err != nil {
			return n, fmt.Errorf("stock %s/%s: %w", s.ProjectID, s.ItemID, err)
		}
		n++
	}
	for _, e := range snap.Ledger {
		if _, err := tx.Exec(`INSERT INTO ledger_entries (id, project_id, item_id, quantity, kind, created_at, actor_id,
				evidence_url, notes, item_name, item_unit, item_sku)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ProjectID, e.ItemID, e.Quantity, e.Kind, formatTime(e.CreatedAt), e.ActorID,
			e.EvidenceURL, e.Notes, e.ItemName, e.ItemUnit, e.ItemSKU); err != nil {
			return n, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		n++
	}
	for _, e := range snap.Employees {
		if _, err := tx.Exec(`INSERT INTO employees (`+employeeSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.FullName, e.Role, e.NationalID, e.DailyRate, e.ProjectID, boolInt(e.Active)); err != nil {
			return n, fmt.Errorf("employee %s: %w", e.ID, err)
		}
		n++
	}
	for _, a := range snap.Attendance {
		if _, err := tx.Exec(insertAttendanceSQL, attendanceArgs(a)...); err != nil {
			return n, fmt.Errorf("attendance %s: %w", a.ID, err)
		}
		n++
	}
	for _, r := range snap.Requisitions {
		if err := putRequisition(tx, r); err != nil {
			return n, fmt.Errorf("requisition %s: %w", r.ID, err)
		}
		n += 1 + len(r.Items)
	}
	for _, l := range snap.Loans {
		if _, err := tx.Exec(`INSERT INTO active_loans (`+loanSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.ProjectID, l.ItemID, l.EmployeeID, formatTime(l.CreatedAt), l.CreatedBy, l.ItemName, l.EmployeeName); err != nil {
			return n, fmt.Errorf("loan %s: %w", l.ID, err)
		}
		n++
	}
	for _, l := range snap.SiteLogs {
		if _, err := tx.Exec(`INSERT INTO site_logs (id, project_id, author_id, category, content, created_at, author_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.ProjectID, l.AuthorID, l.Category, l.Content, formatTime(l.CreatedAt), l.AuthorName); err != nil {
			return n, fmt.Errorf("site log %s: %w", l.ID, err)
		}
		n++
	}
	return n, nil
}
