package remote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Site operations write straight to the server; callers mirror the returned
// rows locally.

func (g *Gateway) CheckIn(ctx context.Context, projectID, employeeID, workDate, gps string) (*AttendanceRow, error) {
	body := map[string]any{
		"project_id":   projectID,
		"employee_id":  employeeID,
		"work_date":    workDate,
		"check_in_gps": gps,
	}
	var rows []AttendanceRow
	if err := g.insertRows(ctx, "check in", "attendance_log", "", body, &rows); err != nil {
		return nil, err
	}
	return single("check in", rows)
}

func (g *Gateway) CheckOut(ctx context.Context, attendanceID string, at time.Time, gps string) (*AttendanceRow, error) {
	body := map[string]any{
		"check_out_time": at.UTC().Format(time.RFC3339),
		"check_out_gps":  gps,
	}
	var rows []AttendanceRow
	if err := g.updateRows(ctx, "check out", "attendance_log", attendanceID, body, &rows); err != nil {
		return nil, err
	}
	return single("check out", rows)
}

// RequisitionLine is one requested item.
type RequisitionLine struct {
	ItemID   string
	Quantity decimal.Decimal
}

// CreateRequisition inserts a PENDING header and then its lines.
func (g *Gateway) CreateRequisition(ctx context.Context, projectID string, lines []RequisitionLine) (*RequisitionRow, error) {
	header := map[string]any{
		"project_id": projectID,
		"user_id":    g.UserID(),
		"status":     "PENDING",
	}
	var headers []RequisitionRow
	if err := g.insertRows(ctx, "create requisition", "requisitions", "", header, &headers); err != nil {
		return nil, err
	}
	req, err := single("create requisition", headers)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		items = append(items, map[string]any{
			"requisition_id":     string(req.ID),
			"sku_id":             l.ItemID,
			"quantity_requested": l.Quantity,
			"quantity_received":  0,
		})
	}
	if err := g.insertRows(ctx, "create requisition items", "requisition_items", "*,master_sku(name,unit,sku)", items, &req.Items); err != nil {
		return nil, err
	}
	return req, nil
}

func (g *Gateway) UpdateRequisitionStatus(ctx context.Context, requisitionID, status string) error {
	return g.rpc(ctx, "update_requisition_status", map[string]any{
		"req_id":     requisitionID,
		"new_status": status,
	}, nil)
}

// ReceiveRequisition books the received goods; the server writes the ledger rows.
func (g *Gateway) ReceiveRequisition(ctx context.Context, requisitionID string) error {
	return g.rpc(ctx, "receive_requisition", map[string]any{
		"req_id":        requisitionID,
		"user_id_actor": g.UserID(),
	}, nil)
}

func (g *Gateway) CreateLoan(ctx context.Context, projectID, itemID, employeeID string) (*LoanRow, error) {
	body := map[string]any{
		"project_id":  projectID,
		"sku_id":      itemID,
		"employee_id": employeeID,
		"created_by":  g.UserID(),
	}
	var rows []LoanRow
	if err := g.insertRows(ctx, "create loan", "active_loans", "*,master_sku(name),employees(full_name)", body, &rows); err != nil {
		return nil, err
	}
	return single("create loan", rows)
}

func (g *Gateway) DeleteLoan(ctx context.Context, loanID string) error {
	return g.deleteRows(ctx, "delete loan", "active_loans", loanID)
}

func (g *Gateway) CreateSiteLog(ctx context.Context, projectID, category, content string) (*SiteLogRow, error) {
	body := map[string]any{
		"project_id": projectID,
		"user_id":    g.UserID(),
		"category":   category,
		"content":    content,
	}
	var rows []SiteLogRow
	if err := g.insertRows(ctx, "create site log", "site_logs", "*,profiles(full_name)", body, &rows); err != nil {
		return nil, err
	}
	return single("create site log", rows)
}

// SaveEmployee inserts a new employee (empty ID) or updates an existing one.
func (g *Gateway) SaveEmployee(ctx context.Context, e EmployeeRow) (*EmployeeRow, error) {
	var rows []EmployeeRow
	var err error
	if e.ID == "" {
		err = g.insertRows(ctx, "create employee", "employees", "", e, &rows)
	} else {
		err = g.updateRows(ctx, "update employee", "employees", e.ID, e, &rows)
	}
	if err != nil {
		return nil, err
	}
	return single("save employee", rows)
}

// SaveCatalogItem inserts a new catalog item (empty ID) or updates an existing one.
func (g *Gateway) SaveCatalogItem(ctx context.Context, it ItemRow) (*ItemRow, error) {
	var rows []ItemRow
	var err error
	if it.ID == "" {
		err = g.insertRows(ctx, "create catalog item", "master_sku", "", it, &rows)
	} else {
		err = g.updateRows(ctx, "update catalog item", "master_sku", it.ID, it, &rows)
	}
	if err != nil {
		return nil, err
	}
	return single("save catalog item", rows)
}

// CreateProject creates a project and returns its id.
func (g *Gateway) CreateProject(ctx context.Context, name, location string) (string, error) {
	var id string
	err := g.rpc(ctx, "create_new_project", map[string]any{
		"p_name":     name,
		"p_location": location,
	}, &id)
	return id, err
}
