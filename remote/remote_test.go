package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sitemanager/blob"
)

// testServer creates an httptest server with the given handler.
func testServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func jsonReply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testGateway(url string, b blob.Store) *Gateway {
	return New(Options{BaseURL: url, APIKey: "anon", LedgerLimit: 50, AttendanceDays: 7, Blob: b,
		Now: func() time.Time { return fixedNow }})
}

func TestFetchSnapshot(t *testing.T) {
	var mu sync.Mutex
	queries := map[string]string{}
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries[r.URL.Path] = r.URL.RawQuery
		mu.Unlock()
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("%s: missing apikey header", r.URL.Path)
		}
		switch r.URL.Path {
		case "/rest/v1/projects":
			jsonReply(w, 200, `[{"id":"p1","name":"Torre Norte"}]`)
		case "/rest/v1/master_sku":
			jsonReply(w, 200, `[{"id":"i1","sku":"CEM-50","name":"Cement","unit":"bag","price":7.5,"min_stock_alert":10}]`)
		case "/rest/v1/employees":
			jsonReply(w, 200, `[{"id":"e1","full_name":"Ana Rojas","daily_rate":"45.50","is_active":true}]`)
		case "/rest/v1/project_inventory":
			jsonReply(w, 200, `[{"project_id":"p1","sku_id":"i1","quantity":40}]`)
		case "/rest/v1/inventory_ledger":
			jsonReply(w, 200, `[{"id":"l1","project_id":"p1","sku_id":"i1","transaction_type":"ENTRADA","quantity_change":40,
				"created_at":"2026-03-01T10:00:00Z","master_sku":{"name":"Cement","unit":"bag","sku":"CEM-50"}}]`)
		case "/rest/v1/attendance_log":
			jsonReply(w, 200, `[{"id":17,"employee_id":"e1","work_date":"2026-03-02","check_in_time":"2026-03-02T07:30:00Z"}]`)
		default:
			jsonReply(w, 200, `[]`)
		}
	})
	defer srv.Close()

	snap, err := testGateway(srv.URL, nil).FetchSnapshot(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(snap.Projects) != 1 || len(snap.Items) != 1 || len(snap.Stock) != 1 || len(snap.Ledger) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Items[0].Price.String() != "7.5" || snap.Items[0].MinStockAlert == nil {
		t.Errorf("item = %+v", snap.Items[0])
	}
	if snap.Ledger[0].MasterSKU == nil || snap.Ledger[0].MasterSKU.Name != "Cement" {
		t.Errorf("ledger embed = %+v", snap.Ledger[0].MasterSKU)
	}
	if snap.Attendance[0].ID != "17" {
		t.Errorf("attendance id = %q, want 17", snap.Attendance[0].ID)
	}
	if !snap.FetchedAt.Equal(fixedNow) {
		t.Errorf("fetched at = %v", snap.FetchedAt)
	}

	q := queries["/rest/v1/inventory_ledger"]
	if !strings.Contains(q, "project_id=eq.p1") || !strings.Contains(q, "limit=50") {
		t.Errorf("ledger query = %q, want project scope and bounded tail", q)
	}
	if q := queries["/rest/v1/attendance_log"]; !strings.Contains(q, "work_date=gte.2026-02-23") {
		t.Errorf("attendance query = %q, want 7-day window", q)
	}
}

func TestFetchSnapshotWithoutProjectSkipsScopedReads(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		jsonReply(w, 200, `[]`)
	})
	defer srv.Close()

	if _, err := testGateway(srv.URL, nil).FetchSnapshot(context.Background(), ""); err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("requests = %v, want only global tables", paths)
	}
}

func TestFetchSnapshotFailsAsUnit(t *testing.T) {
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/active_loans" {
			jsonReply(w, 503, `{"message":"upstream down"}`)
			return
		}
		jsonReply(w, 200, `[]`)
	})
	defer srv.Close()

	snap, err := testGateway(srv.URL, nil).FetchSnapshot(context.Background(), "p1")
	if err == nil {
		t.Fatal("expected error")
	}
	if snap != nil {
		t.Error("partial snapshot must not be returned")
	}
	var ce *ConnectivityError
	if !errors.As(err, &ce) || ce.Status != 503 {
		t.Errorf("err = %v, want ConnectivityError 503", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   string
	}{
		{401, `{"code":"PGRST301","message":"JWT expired"}`, KindAuth},
		{403, `{"message":"permission denied"}`, KindAuth},
		{400, `{"code":"23514","message":"stock cannot go negative","details":"sku i1","hint":"check quantity"}`, KindValidation},
		{409, `{"code":"23503","message":"fk violation"}`, KindValidation},
		{500, `{"message":"boom"}`, KindConnectivity},
		{429, ``, KindConnectivity},
	}
	for _, tc := range cases {
		srv := testServer(func(w http.ResponseWriter, r *http.Request) { jsonReply(w, tc.status, tc.body) })
		err := testGateway(srv.URL, nil).SubmitMovement(context.Background(), Movement{ClientRef: "r", ProjectID: "p1", ItemID: "i1"})
		srv.Close()
		if got := KindOf(err); got != tc.kind {
			t.Errorf("HTTP %d: kind = %q, want %q (err %v)", tc.status, got, tc.kind, err)
		}
		if tc.kind == KindValidation && tc.status == 400 {
			var ve *ValidationError
			errors.As(err, &ve)
			if ve.Code != "23514" || ve.Details != "sku i1" || ve.Hint != "check quantity" {
				t.Errorf("validation fields = %+v", ve)
			}
		}
	}

	srv := testServer(func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()
	err := testGateway(url, nil).SubmitMovement(context.Background(), Movement{ClientRef: "r"})
	if !IsRetryable(err) {
		t.Errorf("closed server err = %v, want retryable ConnectivityError", err)
	}
}

type fakeBlob struct {
	names []string
	err   error
}

func (f *fakeBlob) Put(_ context.Context, name, _ string, _ []byte) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/firmas/" + name, nil
}

func TestSubmitMovementUploadsEvidenceFirst(t *testing.T) {
	var inserted []map[string]any
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/inventory_ledger" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&inserted)
		jsonReply(w, 201, `[]`)
	})
	defer srv.Close()

	fb := &fakeBlob{}
	g := testGateway(srv.URL, fb)
	g.SetSession("jwt", "user-1")
	err := g.SubmitMovement(context.Background(), Movement{
		ClientRef: "ref-1", ProjectID: "p1", ItemID: "i1", TransactionType: TxOut,
		Signature: "data:image/png;base64,iVBORw0KGgo=",
	})
	if err != nil {
		t.Fatalf("SubmitMovement: %v", err)
	}
	wantName := "1772452800000_i1.png"
	if len(fb.names) != 1 || fb.names[0] != wantName {
		t.Errorf("uploaded = %v, want [%s]", fb.names, wantName)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted = %v", inserted)
	}
	row := inserted[0]
	if row["evidence_url"] != "https://cdn.example/firmas/"+wantName {
		t.Errorf("evidence_url = %v", row["evidence_url"])
	}
	if row["client_ref"] != "ref-1" || row["user_id"] != "user-1" || row["transaction_type"] != TxOut {
		t.Errorf("row = %v", row)
	}
}

func TestSubmitMovementContinuesWithoutEvidence(t *testing.T) {
	var inserted []map[string]any
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&inserted)
		jsonReply(w, 201, `[]`)
	})
	defer srv.Close()

	fb := &fakeBlob{err: errors.New("bucket full")}
	err := testGateway(srv.URL, fb).SubmitMovement(context.Background(), Movement{
		ClientRef: "ref-1", ProjectID: "p1", ItemID: "i1", Signature: "data:image/png;base64,iVBORw0KGgo=",
	})
	if err != nil {
		t.Fatalf("SubmitMovement: %v", err)
	}
	if len(inserted) != 1 || inserted[0]["evidence_url"] != nil {
		t.Errorf("inserted = %v, want row without evidence", inserted)
	}
}

func TestSubmitMovementDuplicateIsDelivered(t *testing.T) {
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, 409, `{"code":"23505","message":"duplicate key value violates unique constraint \"inventory_ledger_client_ref_key\""}`)
	})
	defer srv.Close()

	if err := testGateway(srv.URL, nil).SubmitMovement(context.Background(), Movement{ClientRef: "ref-1"}); err != nil {
		t.Errorf("duplicate client_ref should count as delivered, got %v", err)
	}
}

func TestSubmitMovementOtherUniqueViolationIsRejected(t *testing.T) {
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, 409, `{"code":"23505","message":"duplicate key value violates unique constraint \"inventory_ledger_receipt_no_key\"","details":"Key (receipt_no)=(R-100) already exists."}`)
	})
	defer srv.Close()

	err := testGateway(srv.URL, nil).SubmitMovement(context.Background(), Movement{ClientRef: "ref-1"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Code != "23505" || !strings.Contains(ve.Details, "receipt_no") {
		t.Errorf("server error not kept verbatim: %+v", ve)
	}
}

func TestSessionHeader(t *testing.T) {
	var auth []string
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		jsonReply(w, 200, `[]`)
	})
	defer srv.Close()

	g := testGateway(srv.URL, nil)
	g.selectRows(context.Background(), "t", "projects", nil, &[]ProjectRow{})
	g.SetSession("user-jwt", "u1")
	g.selectRows(context.Background(), "t", "projects", nil, &[]ProjectRow{})
	g.ClearSession()
	g.selectRows(context.Background(), "t", "projects", nil, &[]ProjectRow{})

	want := []string{"Bearer anon", "Bearer user-jwt", "Bearer anon"}
	for i := range want {
		if auth[i] != want[i] {
			t.Errorf("request %d auth = %q, want %q", i, auth[i], want[i])
		}
	}
}

func TestRPCArguments(t *testing.T) {
	var path string
	var args map[string]any
	srv := testServer(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&args)
		jsonReply(w, 200, `null`)
	})
	defer srv.Close()

	g := testGateway(srv.URL, nil)
	g.SetSession("jwt", "actor-1")
	if err := g.ReceiveRequisition(context.Background(), "req-9"); err != nil {
		t.Fatalf("ReceiveRequisition: %v", err)
	}
	if path != "/rest/v1/rpc/receive_requisition" {
		t.Errorf("path = %q", path)
	}
	if args["req_id"] != "req-9" || args["user_id_actor"] != "actor-1" {
		t.Errorf("args = %v", args)
	}
}

func TestPing(t *testing.T) {
	srv := testServer(func(w http.ResponseWriter, r *http.Request) { jsonReply(w, 401, `{}`) })
	if err := testGateway(srv.URL, nil).Ping(context.Background()); err != nil {
		t.Errorf("401 still means reachable, got %v", err)
	}
	srv.Close()
	if err := testGateway(srv.URL, nil).Ping(context.Background()); !IsRetryable(err) {
		t.Errorf("closed server ping err = %v, want ConnectivityError", err)
	}
}
