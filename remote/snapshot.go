package remote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot is the raw authoritative working set as the backend returns it.
type Snapshot struct {
	ProjectID    string
	FetchedAt    time.Time
	Projects     []ProjectRow
	Items        []ItemRow
	Stock        []StockRow
	Ledger       []LedgerRow
	Employees    []EmployeeRow
	Attendance   []AttendanceRow
	Requisitions []RequisitionRow
	Loans        []LoanRow
	SiteLogs     []SiteLogRow
}

// FetchSnapshot reads every mirrored entity in parallel. Project-scoped
// reads are skipped when projectID is empty. The first failure cancels the
// rest and is returned; partial results are never returned.
func (g *Gateway) FetchSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	snap := &Snapshot{ProjectID: projectID, FetchedAt: g.now()}
	grp, ctx := errgroup.WithContext(ctx)

	fetch := func(op, table string, params map[string]string, out any) {
		grp.Go(func() error { return g.selectRows(ctx, op, table, params, out) })
	}

	fetch("fetch projects", "projects", map[string]string{"select": "id,name", "order": "name.asc"}, &snap.Projects)
	fetch("fetch catalog", "master_sku", map[string]string{"select": "*", "order": "name.asc"}, &snap.Items)
	fetch("fetch employees", "employees", map[string]string{"select": "*", "is_active": "eq.true"}, &snap.Employees)

	if projectID != "" {
		scope := "eq." + projectID
		since := g.now().AddDate(0, 0, -g.attendanceDays).Format("2006-01-02")

		fetch("fetch stock", "project_inventory", map[string]string{
			"select": "project_id,sku_id,quantity", "project_id": scope,
		}, &snap.Stock)
		fetch("fetch ledger", "inventory_ledger", map[string]string{
			"select":     "*,master_sku(name,unit,sku)",
			"project_id": scope,
			"order":      "created_at.desc",
			"limit":      strconv.Itoa(g.ledgerLimit),
		}, &snap.Ledger)
		fetch("fetch attendance", "attendance_log", map[string]string{
			"select": "*", "project_id": scope, "work_date": "gte." + since,
		}, &snap.Attendance)
		fetch("fetch requisitions", "requisitions", map[string]string{
			"select":     "*,requisition_items(*,master_sku(name,unit,sku))",
			"project_id": scope,
			"order":      "created_at.desc",
		}, &snap.Requisitions)
		fetch("fetch loans", "active_loans", map[string]string{
			"select":     "*,master_sku(name),employees(full_name)",
			"project_id": scope,
		}, &snap.Loans)
		fetch("fetch site logs", "site_logs", map[string]string{
			"select":     "*,profiles(full_name)",
			"project_id": scope,
			"order":      "created_at.desc",
			"limit":      "100",
		}, &snap.SiteLogs)
	}

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	g.log.Debug("snapshot fetched",
		zap.String("project", projectID),
		zap.Int("items", len(snap.Items)),
		zap.Int("stock", len(snap.Stock)),
		zap.Int("ledger", len(snap.Ledger)))
	return snap, nil
}
