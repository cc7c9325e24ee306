package remote

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types as the backend names them.
const (
	TxOut        = "SALIDA"
	TxIn         = "ENTRADA"
	TxAdjustment = "AJUSTE"
)

// FlexID accepts both string and numeric ids; attendance rows use int8 keys.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

type ProjectRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ItemRow struct {
	ID            string           `json:"id,omitempty"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Unit          string           `json:"unit"`
	Price         decimal.Decimal  `json:"price"`
	Supplier      *string          `json:"supplier"`
	MinStockAlert *decimal.Decimal `json:"min_stock_alert"`
	Description   *string          `json:"description"`
	ItemType      string           `json:"item_type,omitempty"`
}

type StockRow struct {
	ProjectID string          `json:"project_id"`
	SKUID     string          `json:"sku_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// SKURef is the embedded master_sku projection on joined rows.
type SKURef struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	SKU  string `json:"sku"`
}

type LedgerRow struct {
	ID              FlexID          `json:"id"`
	ProjectID       string          `json:"project_id"`
	SKUID           string          `json:"sku_id"`
	UserID          *string         `json:"user_id"`
	TransactionType string          `json:"transaction_type"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	EvidenceURL     *string         `json:"evidence_url"`
	Notes           *string         `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	MasterSKU       *SKURef         `json:"master_sku"`
}

type EmployeeRow struct {
	ID        string          `json:"id,omitempty"`
	FullName  string          `json:"full_name"`
	Role      *string         `json:"role"`
	DNI       *string         `json:"dni"`
	DailyRate decimal.Decimal `json:"daily_rate"`
	ProjectID *string         `json:"project_id"`
	IsActive  bool            `json:"is_active"`
}

type AttendanceRow struct {
	ID           FlexID     `json:"id"`
	ProjectID    *string    `json:"project_id"`
	EmployeeID   string     `json:"employee_id"`
	WorkDate     string     `json:"work_date"`
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time"`
	CheckInGPS   *string    `json:"check_in_gps"`
	CheckOutGPS  *string    `json:"check_out_gps"`
}

type RequisitionItemRow struct {
	ID                FlexID          `json:"id"`
	RequisitionID     FlexID          `json:"requisition_id"`
	SKUID             string          `json:"sku_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	MasterSKU         *SKURef         `json:"master_sku"`
}

type RequisitionRow struct {
	ID        FlexID               `json:"id"`
	ProjectID string               `json:"project_id"`
	UserID    *string              `json:"user_id"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	Items     []RequisitionItemRow `json:"requisition_items"`
}

// NameRef is an embedded projection carrying a display name.
type NameRef struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

type LoanRow struct {
	ID         FlexID    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SKUID      string    `json:"sku_id"`
	EmployeeID string    `json:"employee_id"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  *string   `json:"created_by"`
	MasterSKU  *NameRef  `json:"master_sku"`
	Employee   *NameRef  `json:"employees"`
}

type SiteLogRow struct {
	ID        FlexID    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    *string   `json:"user_id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Profile   *NameRef  `json:"profiles"`
}

// Str dereferences an optional server string.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
