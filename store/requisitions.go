package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Requisition is a material request from a site to the warehouse.
type Requisition struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	RequestedBy string            `json:"requested_by"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []RequisitionItem `json:"items"`
}

// RequisitionItem is one requested line.
type RequisitionItem struct {
	ID                string          `json:"id"`
	RequisitionID     string          `json:"requisition_id"`
	ItemID            string          `json:"item_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	ItemName          string          `json:"item_name"`
	ItemUnit          string          `json:"item_unit"`
}

var requisitionTables = []string{TableRequisitions, TableRequisitionItems}

// ListRequisitions returns a project's requisitions, newest first, with their lines.
func (db *DB) ListRequisitions(projectID string) ([]Requisition, error) {
	rows, err := db.Query(`SELECT id, project_id, requested_by, status, created_at
		FROM requisitions WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, storageErr("list requisitions", err)
	}
	var out []Requisition
	for rows.Next() {
		var r Requisition
		var created string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.RequestedBy, &r.Status, &created); err != nil {
			rows.Close()
			return nil, storageErr("list requisitions", err)
		}
		r.CreatedAt = scanTime(created)
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("list requisitions", err)
	}
	for i := range out {
		if out[i].Items, err = db.listRequisitionItems(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) GetRequisition(id string) (*Requisition, error) {
	var r Requisition
	var created string
	err := db.QueryRow(`SELECT id, project_id, requested_by, status, created_at FROM requisitions WHERE id = ?`, id).
		Scan(&r.ID, &r.ProjectID, &r.RequestedBy, &r.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get requisition", err)
	}
	r.CreatedAt = scanTime(created)
	if r.Items, err = db.listRequisitionItems(id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) listRequisitionItems(reqID string) ([]RequisitionItem, error) {
	rows, err := db.Query(`SELECT id, requisition_id, item_id, quantity_requested, quantity_received, item_name, item_unit
		FROM requisition_items WHERE requisition_id = ? ORDER BY item_name`, reqID)
	if err != nil {
		return nil, storageErr("list requisition items", err)
	}
	defer rows.Close()
	var out []RequisitionItem
	for rows.Next() {
		var it RequisitionItem
		if err := rows.Scan(&it.ID, &it.RequisitionID, &it.ItemID, &it.QuantityRequested, &it.QuantityReceived,
			&it.ItemName, &it.ItemUnit); err != nil {
			return nil, storageErr("list requisition items", err)
		}
		out = append(out, it)
	}
	return out, storageErr("list requisition items", rows.Err())
}

// PutRequisition upserts a requisition header and replaces its lines.
func (db *DB) PutRequisition(r Requisition) error {
	return db.WithTx(requisitionTables, func(tx *sql.Tx) error {
		return storageErr("put requisition", putRequisition(tx, r))
	})
}

func putRequisition(tx *sql.Tx, r Requisition) error {
	if _, err := tx.Exec(`INSERT INTO requisitions (id, project_id, requested_by, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		r.ID, r.ProjectID, r.RequestedBy, r.Status, formatTime(r.CreatedAt)); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM requisition_items WHERE requisition_id = ?`, r.ID); err != nil {
		return err
	}
	for _, it := range r.Items {
		if _, err := tx.Exec(`INSERT INTO requisition_items
			(id, requisition_id, item_id, quantity_requested, quantity_received, item_name, item_unit)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, r.ID, it.ItemID, it.QuantityRequested, it.QuantityReceived, it.ItemName, it.ItemUnit); err != nil {
			return err
		}
	}
	return nil
}

// SetRequisitionStatus updates the mirrored status after the server accepted it.
func (db *DB) SetRequisitionStatus(id, status string) error {
	res, err := db.exec("set requisition status", []string{TableRequisitions},
		`UPDATE requisitions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
