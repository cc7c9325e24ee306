package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry kinds.
const (
	KindWithdrawal = "withdrawal"
	KindReceipt    = "receipt"
	KindAdjustment = "adjustment"
	KindReturn     = "return"
)

// ValidKind reports whether k is a known ledger kind.
func ValidKind(k string) bool {
	switch k {
	case KindWithdrawal, KindReceipt, KindAdjustment, KindReturn:
		return true
	}
	return false
}

// LedgerEntry is an immutable stock movement recorded by the server.
type LedgerEntry struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	ItemID      string          `json:"item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Kind        string          `json:"kind"`
	CreatedAt   time.Time       `json:"created_at"`
	ActorID     string          `json:"actor_id"`
	EvidenceURL string          `json:"evidence_url"`
	Notes       string          `json:"notes"`

	// Denormalized at download time
	ItemName string `json:"item_name"`
	ItemUnit string `json:"item_unit"`
	ItemSKU  string `json:"item_sku"`
}

// ListLedger returns the newest mirrored movements of a project first.
func (db *DB) ListLedger(projectID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT id, project_id, item_id, quantity, kind, created_at, actor_id,
			evidence_url, notes, item_name, item_unit, item_sku
		FROM ledger_entries WHERE project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, storageErr("list ledger", err)
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var created string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ItemID, &e.Quantity, &e.Kind, &created, &e.ActorID,
			&e.EvidenceURL, &e.Notes, &e.ItemName, &e.ItemUnit, &e.ItemSKU); err != nil {
			return nil, storageErr("list ledger", err)
		}
		e.CreatedAt = scanTime(created)
		out = append(out, e)
	}
	return out, storageErr("list ledger", rows.Err())
}

// LedgerSum adds up the mirrored movements of one item at one project.
func (db *DB) LedgerSum(projectID, itemID string) (decimal.Decimal, error) {
	rows, err := db.Query(`SELECT quantity FROM ledger_entries WHERE project_id = ? AND item_id = ?`,
		projectID, itemID)
	if err != nil {
		return decimal.Zero, storageErr("ledger sum", err)
	}
	defer rows.Close()
	sum := decimal.Zero
	for rows.Next() {
		var q decimal.Decimal
		if err := rows.Scan(&q); err != nil {
			return decimal.Zero, storageErr("ledger sum", err)
		}
		sum = sum.Add(q)
	}
	return sum, storageErr("ledger sum", rows.Err())
}
