package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// baseSnapshot is a small consistent working set: stock equals the ledger sum.
func baseSnapshot(projectID string) *Snapshot {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return &Snapshot{
		ProjectID: projectID,
		Projects:  []Project{{ID: projectID, Name: "Torre Norte"}},
		Items: []CatalogItem{
			{ID: "item-cement", SKU: "CEM-50", Name: "Cement 50kg", Unit: "bag", ReorderThreshold: dec("10")},
			{ID: "item-drill", SKU: "TL-DRILL", Name: "Hammer drill", Unit: "pc", Kind: ItemTool, ReorderThreshold: dec("1")},
		},
		Stock: []StockLevel{
			{ProjectID: projectID, ItemID: "item-cement", Quantity: dec("40")},
			{ProjectID: projectID, ItemID: "item-drill", Quantity: dec("2")},
		},
		Ledger: []LedgerEntry{
			{ID: "l1", ProjectID: projectID, ItemID: "item-cement", Quantity: dec("50"), Kind: KindReceipt, CreatedAt: now, ItemName: "Cement 50kg"},
			{ID: "l2", ProjectID: projectID, ItemID: "item-cement", Quantity: dec("-10"), Kind: KindWithdrawal, CreatedAt: now.Add(time.Hour), ItemName: "Cement 50kg"},
			{ID: "l3", ProjectID: projectID, ItemID: "item-drill", Quantity: dec("2"), Kind: KindReceipt, CreatedAt: now, ItemName: "Hammer drill"},
		},
		Employees: []Employee{{ID: "emp-1", FullName: "Ana Rojas", Role: "mason", DailyRate: dec("45.50"), ProjectID: projectID, Active: true}},
	}
}

func activate(t *testing.T, db *DB, projectID string) {
	t.Helper()
	if _, err := db.SwitchProject(projectID); err != nil {
		t.Fatalf("switch project: %v", err)
	}
}

func TestMigrationsAreAdditive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	old, err := open(path, nil, 2)
	if err != nil {
		t.Fatalf("open at v2: %v", err)
	}
	if v, _ := old.SchemaVersion(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
	if _, err := old.Exec(`INSERT INTO settings (key, value) VALUES ('active_project', 'p1')`); err != nil {
		t.Fatal(err)
	}
	if _, err := old.Exec(`INSERT INTO pending_mutations (client_ref, project_id, item_id, delta, payload, created_at)
		VALUES ('ref-1', 'p1', 'item-cement', '-3', '{}', '2026-01-01T00:00:00.000000Z')`); err != nil {
		t.Fatal(err)
	}
	old.Close()

	db, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen at latest: %v", err)
	}
	defer db.Close()
	if v, _ := db.SchemaVersion(); v != LatestVersion {
		t.Errorf("version = %d, want %d", v, LatestVersion)
	}
	muts, err := db.ListPendingMutations(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(muts) != 1 || muts[0].ClientRef != "ref-1" {
		t.Fatalf("queued mutation lost across migration: %+v", muts)
	}
	if muts[0].LastErrorKind != "" {
		t.Errorf("new column default = %q, want empty", muts[0].LastErrorKind)
	}
	if p, _ := db.ActiveProject(); p != "p1" {
		t.Errorf("active project = %q, want p1", p)
	}
}

func TestMigrateRefusesDowngrade(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(1); err == nil {
		t.Fatal("migrating to an older version should fail")
	}
	var se *StorageError
	if err := db.Migrate(1); !errors.As(err, &se) {
		t.Errorf("error %v should be a StorageError", err)
	}
}

func TestEnqueueAppliesDeltaAtomically(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	if _, err := db.ReplaceSnapshot(baseSnapshot("p1")); err != nil {
		t.Fatalf("replace: %v", err)
	}

	m := &Mutation{ClientRef: "ref-a", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-5"), Payload: []byte(`{}`)}
	id, err := db.EnqueueMutation(m)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == 0 {
		t.Fatal("id should be assigned")
	}
	q, _ := db.GetStockLevel("p1", "item-cement")
	if !q.Equal(dec("35")) {
		t.Errorf("stock = %s, want 35", q)
	}
	if n, _ := db.CountPendingMutations(); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}

	// Duplicate client ref violates the unique key: neither row nor delta may land.
	dup := &Mutation{ClientRef: "ref-a", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-5"), Payload: []byte(`{}`)}
	if _, err := db.EnqueueMutation(dup); err == nil {
		t.Fatal("duplicate client ref should fail")
	}
	q, _ = db.GetStockLevel("p1", "item-cement")
	if !q.Equal(dec("35")) {
		t.Errorf("stock after failed enqueue = %s, want 35", q)
	}
	if n, _ := db.CountPendingMutations(); n != 1 {
		t.Errorf("pending after failed enqueue = %d, want 1", n)
	}
}

func TestEnqueueCreatesMissingStockRow(t *testing.T) {
	db := testDB(t)
	m := &Mutation{ClientRef: "ref-new", ProjectID: "p1", ItemID: "item-rebar", Delta: dec("12.5"), Payload: []byte(`{}`)}
	if _, err := db.EnqueueMutation(m); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q, _ := db.GetStockLevel("p1", "item-rebar")
	if !q.Equal(dec("12.5")) {
		t.Errorf("stock = %s, want 12.5", q)
	}
}

func TestMutationLifecycle(t *testing.T) {
	db := testDB(t)
	var ids []int64
	for _, ref := range []string{"r1", "r2", "r3"} {
		id, err := db.EnqueueMutation(&Mutation{ClientRef: ref, ProjectID: "p1", ItemID: "i1", Delta: dec("-1"), Payload: []byte(`{}`)})
		if err != nil {
			t.Fatalf("enqueue %s: %v", ref, err)
		}
		ids = append(ids, id)
	}

	pending, _ := db.ListPendingMutations(0)
	for i, m := range pending {
		if m.ID != ids[i] {
			t.Errorf("pending[%d].ID = %d, want %d (FIFO)", i, m.ID, ids[i])
		}
	}

	if err := db.MarkMutationInFlight(ids[0]); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := db.MarkMutationInFlight(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("second claim err = %v, want ErrNotFound", err)
	}
	if pending, _ := db.ListPendingMutations(0); len(pending) != 2 {
		t.Errorf("pending while one in flight = %d, want 2", len(pending))
	}
	if _, err := db.DismissMutation(ids[0]); !errors.Is(err, ErrMutationInFlight) {
		t.Errorf("dismiss in-flight err = %v, want ErrMutationInFlight", err)
	}

	if err := db.RevertMutation(ids[0], "server unreachable", "connectivity"); err != nil {
		t.Fatalf("revert: %v", err)
	}
	m, _ := db.GetMutation(ids[0])
	if m.Status != MutationPending || m.Attempts != 1 || m.LastError != "server unreachable" {
		t.Errorf("reverted mutation = %+v", m)
	}

	if err := db.MarkMutationInFlight(ids[0]); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if err := db.DeleteMutation(ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := db.CountPendingMutations(); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}
	// Delivery does not touch stock: the delta was applied at enqueue.
	if q, _ := db.GetStockLevel("p1", "i1"); !q.Equal(dec("-3")) {
		t.Errorf("stock = %s, want -3", q)
	}
}

func TestDismissReversesDelta(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))
	id, _ := db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-7"), Payload: []byte(`{}`)})

	m, err := db.DismissMutation(id)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if m.ClientRef != "r1" {
		t.Errorf("dismissed = %q, want r1", m.ClientRef)
	}
	if q, _ := db.GetStockLevel("p1", "item-cement"); !q.Equal(dec("40")) {
		t.Errorf("stock = %s, want 40", q)
	}
	if _, err := db.DismissMutation(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second dismiss err = %v, want ErrNotFound", err)
	}
}

func TestRecoverInFlightOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.db")
	db, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "i1", Delta: dec("1"), Payload: []byte(`{}`)})
	db.MarkMutationInFlight(id)
	db.Close()

	db, err = Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	m, _ := db.GetMutation(id)
	if m.Status != MutationPending {
		t.Errorf("status after reopen = %q, want pending", m.Status)
	}
}

func TestReplaceSnapshotLedgerInvariant(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	res, err := db.ReplaceSnapshot(baseSnapshot("p1"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.Rebased != 0 {
		t.Errorf("rebased = %d, want 0", res.Rebased)
	}
	for _, item := range []string{"item-cement", "item-drill"} {
		stock, _ := db.GetStockLevel("p1", item)
		sum, _ := db.LedgerSum("p1", item)
		if !stock.Equal(sum) {
			t.Errorf("%s: stock %s != ledger sum %s", item, stock, sum)
		}
	}
	ledger, _ := db.ListLedger("p1", 10)
	if len(ledger) != 3 || ledger[0].ID != "l2" {
		t.Errorf("ledger newest first = %+v", ledger)
	}
	if last, _ := db.LastRefresh(); last.IsZero() {
		t.Error("last refresh should be recorded")
	}
}

func TestReplaceSnapshotRebasesPending(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))
	db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-3"), Payload: []byte(`{}`)})
	db.EnqueueMutation(&Mutation{ClientRef: "r2", ProjectID: "p2", ItemID: "item-cement", Delta: dec("-8"), Payload: []byte(`{}`)})

	res, err := db.ReplaceSnapshot(baseSnapshot("p1"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.Rebased != 1 {
		t.Errorf("rebased = %d, want 1 (other project excluded)", res.Rebased)
	}
	if q, _ := db.GetStockLevel("p1", "item-cement"); !q.Equal(dec("37")) {
		t.Errorf("stock = %s, want 37", q)
	}
}

func TestReplaceSnapshotLeavesInFlightToServer(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))
	id, err := db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-5"), Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.MarkMutationInFlight(id); err != nil {
		t.Fatalf("mark in flight: %v", err)
	}

	// The server already recorded the movement.
	snap := baseSnapshot("p1")
	snap.Stock[0].Quantity = dec("35")
	snap.Ledger = append(snap.Ledger, LedgerEntry{ID: "r1", ProjectID: "p1", ItemID: "item-cement", Quantity: dec("-5"),
		Kind: KindWithdrawal, CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), ItemName: "Cement 50kg"})
	res, err := db.ReplaceSnapshot(snap)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.Rebased != 0 {
		t.Errorf("rebased = %d, want 0", res.Rebased)
	}
	if q, _ := db.GetStockLevel("p1", "item-cement"); !q.Equal(dec("35")) {
		t.Errorf("stock = %s, want 35", q)
	}
}

func TestReplaceSnapshotIsAtomic(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))

	bad := baseSnapshot("p1")
	bad.Stock[0].Quantity = dec("999")
	// Duplicate SKU violates the unique index halfway through the load.
	bad.Items = append(bad.Items, CatalogItem{ID: "item-dup", SKU: "CEM-50", Name: "dup"})
	if _, err := db.ReplaceSnapshot(bad); err == nil {
		t.Fatal("replace with duplicate sku should fail")
	}
	if q, _ := db.GetStockLevel("p1", "item-cement"); !q.Equal(dec("40")) {
		t.Errorf("stock after failed replace = %s, want 40", q)
	}
	items, _ := db.ListCatalogItems("")
	if len(items) != 2 {
		t.Errorf("catalog items = %d, want 2", len(items))
	}
}

func TestReplaceSnapshotRejectsStaleProject(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p2")
	if _, err := db.ReplaceSnapshot(baseSnapshot("p1")); !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("err = %v, want ErrStaleSnapshot", err)
	}
}

func TestSwitchProjectInvalidatesMirror(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))
	db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "item-cement", Delta: dec("-1"), Payload: []byte(`{}`)})

	changed, err := db.SwitchProject("p1")
	if err != nil || changed {
		t.Errorf("switch to same project = (%v, %v), want (false, nil)", changed, err)
	}
	changed, err = db.SwitchProject("p2")
	if err != nil || !changed {
		t.Fatalf("switch = (%v, %v)", changed, err)
	}
	if stock, _ := db.ListStock("p1"); len(stock) != 0 {
		t.Errorf("stock rows after switch = %d, want 0", len(stock))
	}
	if ledger, _ := db.ListLedger("p1", 10); len(ledger) != 0 {
		t.Errorf("ledger rows after switch = %d, want 0", len(ledger))
	}
	if items, _ := db.ListCatalogItems(""); len(items) != 2 {
		t.Errorf("catalog is global and should survive, got %d", len(items))
	}
	if n, _ := db.CountPendingMutations(); n != 1 {
		t.Errorf("queued mutations = %d, want 1", n)
	}
}

func TestLowStock(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	snap := baseSnapshot("p1")
	snap.Stock[0].Quantity = dec("10")
	db.ReplaceSnapshot(snap)

	low, err := db.ListLowStock("p1")
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ItemID != "item-cement" {
		t.Errorf("low stock = %+v, want only cement", low)
	}
}

func TestCatalogLookup(t *testing.T) {
	db := testDB(t)
	activate(t, db, "p1")
	db.ReplaceSnapshot(baseSnapshot("p1"))

	c, err := db.GetCatalogItemBySKU("TL-DRILL")
	if err != nil {
		t.Fatalf("by sku: %v", err)
	}
	if c.Kind != ItemTool {
		t.Errorf("kind = %q, want tool", c.Kind)
	}
	if _, err := db.GetCatalogItemBySKU("NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing sku err = %v, want ErrNotFound", err)
	}
	found, _ := db.ListCatalogItems("cem")
	if len(found) != 1 {
		t.Errorf("search hits = %d, want 1", len(found))
	}
}

func TestWatchReevaluatesAfterCommit(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counts := Watch(ctx, db, db.CountPendingMutations, TablePendingMutations)
	if got := <-counts; got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}
	db.EnqueueMutation(&Mutation{ClientRef: "r1", ProjectID: "p1", ItemID: "i1", Delta: dec("1"), Payload: []byte(`{}`)})
	select {
	case got := <-counts:
		if got != 1 {
			t.Errorf("count after enqueue = %d, want 1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live query did not fire")
	}

	// Writes to unrelated tables do not wake the query.
	db.SetSetting("theme", "dark")
	select {
	case got := <-counts:
		t.Errorf("unexpected re-evaluation: %d", got)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	for range counts {
	}
}

func TestRequisitionAndLoanRoundTrip(t *testing.T) {
	db := testDB(t)
	r := Requisition{ID: "req-1", ProjectID: "p1", RequestedBy: "u1", Status: "PENDING", CreatedAt: time.Now(),
		Items: []RequisitionItem{{ID: "ri-1", ItemID: "item-cement", QuantityRequested: dec("20"), ItemName: "Cement 50kg"}}}
	if err := db.PutRequisition(r); err != nil {
		t.Fatalf("put requisition: %v", err)
	}
	if err := db.SetRequisitionStatus("req-1", "APPROVED"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := db.GetRequisition("req-1")
	if err != nil {
		t.Fatalf("get requisition: %v", err)
	}
	if got.Status != "APPROVED" || len(got.Items) != 1 || !got.Items[0].QuantityRequested.Equal(dec("20")) {
		t.Errorf("requisition = %+v", got)
	}

	l := Loan{ID: "loan-1", ProjectID: "p1", ItemID: "item-drill", EmployeeID: "emp-1", CreatedAt: time.Now(), EmployeeName: "Ana Rojas"}
	if err := db.PutLoan(l); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	loans, _ := db.ListLoans("p1")
	if len(loans) != 1 || loans[0].EmployeeName != "Ana Rojas" {
		t.Errorf("loans = %+v", loans)
	}
	db.DeleteLoan("loan-1")
	if _, err := db.GetLoan("loan-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted loan err = %v, want ErrNotFound", err)
	}
}

func TestAttendanceCheckOutUpdate(t *testing.T) {
	db := testDB(t)
	in := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	a := Attendance{ID: "att-1", ProjectID: "p1", EmployeeID: "emp-1", WorkDate: "2026-03-02", CheckInTime: in, CheckInGPS: "-33.4,-70.6"}
	if err := db.PutAttendance(a); err != nil {
		t.Fatalf("put: %v", err)
	}
	open, err := db.GetOpenAttendance("emp-1", "2026-03-02")
	if err != nil {
		t.Fatalf("open attendance: %v", err)
	}
	out := in.Add(9 * time.Hour)
	open.CheckOutTime = &out
	db.PutAttendance(*open)
	if _, err := db.GetOpenAttendance("emp-1", "2026-03-02"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after checkout err = %v, want ErrNotFound", err)
	}
	list, _ := db.ListAttendance("p1", "2026-03-02")
	if len(list) != 1 || list[0].CheckOutTime == nil || !list[0].CheckOutTime.Equal(out) {
		t.Errorf("attendance = %+v", list)
	}
}
