package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Catalog item kinds.
const (
	ItemConsumable = "consumable"
	ItemTool       = "tool"
)

// Project is a construction site the device can work against.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogItem is a global material or tool definition.
type CatalogItem struct {
	ID               string          `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	Supplier         string          `json:"supplier"`
	Description      string          `json:"description"`
	Kind             string          `json:"kind"`
}

// StockLevel is the quantity on hand for one item at one project.
type StockLevel struct {
	ProjectID string          `json:"project_id"`
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// StockView is a stock level joined with its catalog item for display.
type StockView struct {
	StockLevel
	SKU              string          `json:"sku"`
	ItemName         string          `json:"item_name"`
	ItemUnit         string          `json:"item_unit"`
	ItemKind         string          `json:"item_kind"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
}

// Low reports whether the quantity is at or below the reorder threshold.
func (s StockView) Low() bool {
	return s.Quantity.LessThanOrEqual(s.ReorderThreshold)
}

func (db *DB) ListProjects() ([]Project, error) {
	rows, err := db.Query(`SELECT id, name FROM projects ORDER BY name`)
	if err != nil {
		return nil, storageErr("list projects", err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, storageErr("list projects", err)
		}
		out = append(out, p)
	}
	return out, storageErr("list projects", rows.Err())
}

func (db *DB) PutProject(p Project) error {
	_, err := db.exec("put project", []string{TableProjects},
		`INSERT INTO projects (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, p.ID, p.Name)
	return err
}

const catalogSelectCols = `id, sku, name, unit, unit_price, reorder_threshold, supplier, description, kind`

func scanCatalogItem(sc interface{ Scan(...any) error }) (CatalogItem, error) {
	var c CatalogItem
	err := sc.Scan(&c.ID, &c.SKU, &c.Name, &c.Unit, &c.UnitPrice, &c.ReorderThreshold,
		&c.Supplier, &c.Description, &c.Kind)
	return c, err
}

// ListCatalogItems returns catalog items, optionally filtered by a
// case-insensitive match on name or SKU.
func (db *DB) ListCatalogItems(search string) ([]CatalogItem, error) {
	q := `SELECT ` + catalogSelectCols + ` FROM catalog_items`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		q += ` WHERE name LIKE ? OR sku LIKE ?`
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	q += ` ORDER BY name`
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, storageErr("list catalog", err)
	}
	defer rows.Close()
	var out []CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, storageErr("list catalog", err)
		}
		out = append(out, c)
	}
	return out, storageErr("list catalog", rows.Err())
}

func (db *DB) GetCatalogItem(id string) (*CatalogItem, error) {
	c, err := scanCatalogItem(db.QueryRow(`SELECT `+catalogSelectCols+` FROM catalog_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get catalog item", err)
	}
	return &c, nil
}

// GetCatalogItemBySKU resolves a scanned code.
func (db *DB) GetCatalogItemBySKU(sku string) (*CatalogItem, error) {
	c, err := scanCatalogItem(db.QueryRow(`SELECT `+catalogSelectCols+` FROM catalog_items WHERE sku = ?`, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get catalog item by sku", err)
	}
	return &c, nil
}

func (db *DB) PutCatalogItem(c CatalogItem) error {
	_, err := db.exec("put catalog item", []string{TableCatalogItems},
		`INSERT INTO catalog_items (`+catalogSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET sku = excluded.sku, name = excluded.name, unit = excluded.unit,
			unit_price = excluded.unit_price, reorder_threshold = excluded.reorder_threshold,
			supplier = excluded.supplier, description = excluded.description, kind = excluded.kind`,
		c.ID, c.SKU, c.Name, c.Unit, c.UnitPrice, c.ReorderThreshold, c.Supplier, c.Description, itemKind(c.Kind))
	return err
}

func itemKind(k string) string {
	if k == "" {
		return ItemConsumable
	}
	return k
}

// GetStockLevel returns the mirrored quantity, zero when no row exists.
func (db *DB) GetStockLevel(projectID, itemID string) (decimal.Decimal, error) {
	var q decimal.Decimal
	err := db.QueryRow(`SELECT quantity FROM stock_levels WHERE project_id = ? AND item_id = ?`,
		projectID, itemID).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, storageErr("get stock level", err)
	}
	return q, nil
}

// ListStock returns the stock of a project joined with catalog details.
func (db *DB) ListStock(projectID string) ([]StockView, error) {
	rows, err := db.Query(`SELECT s.project_id, s.item_id, s.quantity,
			COALESCE(c.sku, ''), COALESCE(c.name, ''), COALESCE(c.unit, ''),
			COALESCE(c.kind, 'consumable'), COALESCE(c.reorder_threshold, '0')
		FROM stock_levels s
		LEFT JOIN catalog_items c ON c.id = s.item_id
		WHERE s.project_id = ?
		ORDER BY c.name`, projectID)
	if err != nil {
		return nil, storageErr("list stock", err)
	}
	defer rows.Close()
	var out []StockView
	for rows.Next() {
		var s StockView
		if err := rows.Scan(&s.ProjectID, &s.ItemID, &s.Quantity, &s.SKU, &s.ItemName, &s.ItemUnit,
			&s.ItemKind, &s.ReorderThreshold); err != nil {
			return nil, storageErr("list stock", err)
		}
		out = append(out, s)
	}
	return out, storageErr("list stock", rows.Err())
}

// ListLowStock returns stock rows at or below their reorder threshold.
// The comparison is done on decimals rather than TEXT columns.
func (db *DB) ListLowStock(projectID string) ([]StockView, error) {
	all, err := db.ListStock(projectID)
	if err != nil {
		return nil, err
	}
	var out []StockView
	for _, s := range all {
		if s.Low() {
			out = append(out, s)
		}
	}
	return out, nil
}

// addStock applies a signed delta to a stock level, creating it when absent.
func addStock(tx *sql.Tx, projectID, itemID string, delta decimal.Decimal) error {
	var cur decimal.Decimal
	err := tx.QueryRow(`SELECT quantity FROM stock_levels WHERE project_id = ? AND item_id = ?`,
		projectID, itemID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		cur = decimal.Zero
	} else if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO stock_levels (project_id, item_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(project_id, item_id) DO UPDATE SET quantity = excluded.quantity`,
		projectID, itemID, cur.Add(delta).String())
	return err
}
