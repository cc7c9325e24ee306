package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sitemanager/remote"
	"sitemanager/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strp(s string) *string { return &s }

type fakeFetcher struct {
	snap  *remote.Snapshot
	err   error
	calls int
	hook  func()
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, projectID string) (*remote.Snapshot, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.snap
	cp.ProjectID = projectID
	return &cp, nil
}

type mockEmitter struct {
	applied []string
	failed  []error
}

func (m *mockEmitter) EmitSnapshotApplied(projectID string, _, _ int, _ time.Duration) {
	m.applied = append(m.applied, projectID)
}
func (m *mockEmitter) EmitSnapshotFailed(_ string, err error) { m.failed = append(m.failed, err) }

func rawSnapshot() *remote.Snapshot {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &remote.Snapshot{
		FetchedAt: at,
		Projects:  []remote.ProjectRow{{ID: "p1", Name: "Torre Norte"}},
		Items: []remote.ItemRow{
			{ID: "i1", SKU: "CEM-50", Name: "Cement", Unit: "bag", Price: dec("7.5"), MinStockAlert: func() *decimal.Decimal { d := dec("10"); return &d }()},
			{ID: "i2", SKU: "TL-1", Name: "Hammer drill", Unit: "pc", ItemType: "TOOL"},
		},
		Stock: []remote.StockRow{{ProjectID: "p1", SKUID: "i1", Quantity: dec("30")}, {ProjectID: "p1", SKUID: "i2", Quantity: dec("1")}},
		Ledger: []remote.LedgerRow{
			{ID: "l1", ProjectID: "p1", SKUID: "i1", TransactionType: "ENTRADA", QuantityChange: dec("40"), CreatedAt: at,
				MasterSKU: &remote.SKURef{Name: "Cement", Unit: "bag", SKU: "CEM-50"}},
			{ID: "l2", ProjectID: "p1", SKUID: "i1", TransactionType: "SALIDA", QuantityChange: dec("-10"), CreatedAt: at.Add(time.Hour)},
			{ID: "l3", ProjectID: "p1", SKUID: "i2", TransactionType: "ENTRADA", QuantityChange: dec("1"), CreatedAt: at},
		},
		Employees:  []remote.EmployeeRow{{ID: "e1", FullName: "Ana Rojas", DailyRate: dec("45"), IsActive: true}},
		Attendance: []remote.AttendanceRow{{ID: "17", EmployeeID: "e1", WorkDate: "2026-03-01", CheckInTime: at}},
		Requisitions: []remote.RequisitionRow{{ID: "r1", ProjectID: "p1", Status: "PENDING", CreatedAt: at,
			Items: []remote.RequisitionItemRow{{ID: "ri1", RequisitionID: "r1", SKUID: "i1", QuantityRequested: dec("20")}}}},
		Loans:    []remote.LoanRow{{ID: "ln1", ProjectID: "p1", SKUID: "i2", EmployeeID: "e1", CreatedAt: at}},
		SiteLogs: []remote.SiteLogRow{{ID: "s1", ProjectID: "p1", UserID: strp("u1"), Category: "safety", Content: "Scaffold inspected", CreatedAt: at, Profile: &remote.NameRef{FullName: "Luis Vera"}}},
	}
}

func TestDenormalize(t *testing.T) {
	raw := rawSnapshot()
	raw.ProjectID = "p1"
	snap := Denormalize(raw)

	if snap.Items[1].Kind != store.ItemTool {
		t.Errorf("drill kind = %q, want tool", snap.Items[1].Kind)
	}
	if !snap.Items[0].ReorderThreshold.Equal(dec("10")) {
		t.Errorf("threshold = %s, want 10", snap.Items[0].ReorderThreshold)
	}
	if snap.Ledger[1].ItemName != "Cement" || snap.Ledger[1].ItemUnit != "bag" {
		t.Errorf("ledger without embed should fall back to catalog, got %+v", snap.Ledger[1])
	}
	if snap.Ledger[1].Kind != store.KindWithdrawal || snap.Ledger[0].Kind != store.KindReceipt {
		t.Errorf("ledger kinds = %q, %q", snap.Ledger[0].Kind, snap.Ledger[1].Kind)
	}
	if snap.Attendance[0].EmployeeName != "Ana Rojas" || snap.Attendance[0].ProjectID != "p1" {
		t.Errorf("attendance = %+v", snap.Attendance[0])
	}
	if snap.Requisitions[0].Items[0].ItemName != "Cement" {
		t.Errorf("requisition line name = %q", snap.Requisitions[0].Items[0].ItemName)
	}
	if snap.Loans[0].ItemName != "Hammer drill" || snap.Loans[0].EmployeeName != "Ana Rojas" {
		t.Errorf("loan = %+v", snap.Loans[0])
	}
	if snap.SiteLogs[0].AuthorName != "Luis Vera" {
		t.Errorf("site log author = %q", snap.SiteLogs[0].AuthorName)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	db := testDB(t)
	db.SwitchProject("p1")
	f := &fakeFetcher{snap: rawSnapshot()}
	em := &mockEmitter{}
	d := NewDownloader(db, f, em, nil)

	if _, err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	stock1, _ := db.ListStock("p1")
	ledger1, _ := db.ListLedger("p1", 100)
	reqs1, _ := db.ListRequisitions("p1")

	if _, err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	stock2, _ := db.ListStock("p1")
	ledger2, _ := db.ListLedger("p1", 100)
	reqs2, _ := db.ListRequisitions("p1")

	if !reflect.DeepEqual(stock1, stock2) || !reflect.DeepEqual(ledger1, ledger2) || !reflect.DeepEqual(reqs1, reqs2) {
		t.Error("two refreshes without mutations should produce identical state")
	}
	if len(em.applied) != 2 {
		t.Errorf("applied events = %d, want 2", len(em.applied))
	}

	for _, s := range stock2 {
		sum, _ := db.LedgerSum("p1", s.ItemID)
		if !s.Quantity.Equal(sum) {
			t.Errorf("%s: stock %s != ledger sum %s", s.ItemID, s.Quantity, sum)
		}
	}
}

func TestRefreshFailureLeavesMirror(t *testing.T) {
	db := testDB(t)
	db.SwitchProject("p1")
	f := &fakeFetcher{snap: rawSnapshot()}
	em := &mockEmitter{}
	d := NewDownloader(db, f, em, nil)
	d.Refresh(context.Background())

	f.err = &remote.ConnectivityError{Op: "fetch ledger", Err: errors.New("timeout")}
	if _, err := d.Refresh(context.Background()); !remote.IsRetryable(err) {
		t.Fatalf("err = %v, want connectivity error", err)
	}
	if q, _ := db.GetStockLevel("p1", "i1"); !q.Equal(dec("30")) {
		t.Errorf("stock after failed refresh = %s, want 30", q)
	}
	if len(em.failed) != 1 {
		t.Errorf("failed events = %d, want 1", len(em.failed))
	}
}

func TestRefreshKeepsPendingVisible(t *testing.T) {
	db := testDB(t)
	db.SwitchProject("p1")
	d := NewDownloader(db, &fakeFetcher{snap: rawSnapshot()}, nil, nil)
	d.Refresh(context.Background())

	db.EnqueueMutation(&store.Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "i1", Delta: dec("-4"), Payload: []byte(`{}`)})
	res, err := d.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Rebased != 1 {
		t.Errorf("rebased = %d, want 1", res.Rebased)
	}
	if q, _ := db.GetStockLevel("p1", "i1"); !q.Equal(dec("26")) {
		t.Errorf("stock = %s, want 26 (server 30 minus pending 4)", q)
	}
}

func TestRefreshDiscardsStaleProject(t *testing.T) {
	db := testDB(t)
	db.SwitchProject("p1")
	f := &fakeFetcher{snap: rawSnapshot()}
	// The user switches project while the fetch is in flight.
	f.hook = func() { db.SwitchProject("p2") }
	em := &mockEmitter{}
	d := NewDownloader(db, f, em, nil)

	if _, err := d.Refresh(context.Background()); !errors.Is(err, store.ErrStaleSnapshot) {
		t.Fatalf("err = %v, want ErrStaleSnapshot", err)
	}
	if stock, _ := db.ListStock("p1"); len(stock) != 0 {
		t.Errorf("stale snapshot was applied: %+v", stock)
	}
	if len(em.applied) != 0 || len(em.failed) != 0 {
		t.Errorf("stale discard should be silent, got %v / %v", em.applied, em.failed)
	}
}
