package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sitemanager/remote"
)

var errUnused = errors.New("not used by engine tests")

// fakeBackend is an in-memory server holding stock for any number of
// projects. Submitted movements change its stock and ledger.
type fakeBackend struct {
	mu             sync.Mutex
	offline        bool
	requireSession bool
	token          string
	userID         string

	stock  map[string]map[string]decimal.Decimal // project -> item -> qty
	ledger []remote.LedgerRow
	seen   map[string]bool

	ops       []string
	fetched   []string
	pings     int
	fetchGate chan struct{} // when set, each fetch waits for a receive or close
	entered   chan struct{}

	submitGate    chan struct{}
	submitEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		stock: map[string]map[string]decimal.Decimal{},
		seen:  map[string]bool{},
	}
}

func (f *fakeBackend) setStock(project, item, qty string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock[project] == nil {
		f.stock[project] = map[string]decimal.Decimal{}
	}
	f.stock[project][item] = decimal.RequireFromString(qty)
}

func (f *fakeBackend) quantity(project, item string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[project][item]
}

func (f *fakeBackend) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeBackend) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func (f *fakeBackend) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// gate reports the first error a request would fail with.
func (f *fakeBackend) gate(op string) error {
	if f.offline {
		return &remote.ConnectivityError{Op: op, Err: errors.New("connection refused")}
	}
	if f.requireSession && f.token == "" {
		return &remote.AuthError{Op: op, Status: 401, Message: "JWT expired"}
	}
	return nil
}

func (f *fakeBackend) FetchSnapshot(ctx context.Context, projectID string) (*remote.Snapshot, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.fetchGate != nil {
		select {
		case <-f.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate("fetch snapshot"); err != nil {
		return nil, err
	}
	f.ops = append(f.ops, "fetch")
	f.fetched = append(f.fetched, projectID)

	snap := &remote.Snapshot{
		ProjectID: projectID,
		FetchedAt: time.Now(),
		Projects:  []remote.ProjectRow{{ID: "p1", Name: "Torre Norte"}, {ID: "p2", Name: "Puente Sur"}},
	}
	for item, qty := range f.stock[projectID] {
		snap.Items = append(snap.Items, remote.ItemRow{ID: item, SKU: item, Name: item, Unit: "u"})
		snap.Stock = append(snap.Stock, remote.StockRow{ProjectID: projectID, SKUID: item, Quantity: qty})
	}
	for _, l := range f.ledger {
		if l.ProjectID == projectID {
			snap.Ledger = append(snap.Ledger, l)
		}
	}
	return snap, nil
}

func (f *fakeBackend) SubmitMovement(ctx context.Context, mv remote.Movement) error {
	if f.submitEntered != nil {
		f.submitEntered <- struct{}{}
	}
	if f.submitGate != nil {
		select {
		case <-f.submitGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate("submit movement"); err != nil {
		return err
	}
	f.ops = append(f.ops, "submit:"+mv.ClientRef)
	if f.seen[mv.ClientRef] {
		return nil
	}
	f.seen[mv.ClientRef] = true
	if f.stock[mv.ProjectID] == nil {
		f.stock[mv.ProjectID] = map[string]decimal.Decimal{}
	}
	f.stock[mv.ProjectID][mv.ItemID] = f.stock[mv.ProjectID][mv.ItemID].Add(mv.Quantity)
	f.ledger = append(f.ledger, remote.LedgerRow{
		ID:              remote.FlexID(mv.ClientRef),
		ProjectID:       mv.ProjectID,
		SKUID:           mv.ItemID,
		TransactionType: mv.TransactionType,
		QuantityChange:  mv.Quantity,
		CreatedAt:       time.Now(),
	})
	return nil
}

func (f *fakeBackend) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.offline {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeBackend) SetSession(token, userID string) {
	f.mu.Lock()
	f.token, f.userID = token, userID
	f.mu.Unlock()
}

func (f *fakeBackend) ClearSession() { f.SetSession("", "") }

func (f *fakeBackend) HasSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != ""
}

func (f *fakeBackend) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeBackend) CheckIn(context.Context, string, string, string, string) (*remote.AttendanceRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) CheckOut(context.Context, string, time.Time, string) (*remote.AttendanceRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) CreateRequisition(context.Context, string, []remote.RequisitionLine) (*remote.RequisitionRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) UpdateRequisitionStatus(context.Context, string, string) error { return errUnused }
func (f *fakeBackend) ReceiveRequisition(context.Context, string) error             { return errUnused }

func (f *fakeBackend) CreateLoan(context.Context, string, string, string) (*remote.LoanRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) DeleteLoan(context.Context, string) error { return errUnused }

func (f *fakeBackend) CreateSiteLog(context.Context, string, string, string) (*remote.SiteLogRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) SaveEmployee(context.Context, remote.EmployeeRow) (*remote.EmployeeRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) SaveCatalogItem(context.Context, remote.ItemRow) (*remote.ItemRow, error) {
	return nil, errUnused
}

func (f *fakeBackend) CreateProject(context.Context, string, string) (string, error) {
	return "", errUnused
}
