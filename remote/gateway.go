// Package remote is the stateless client for the backend REST API
// (PostgREST-style tables and RPCs) and evidence uploads.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"sitemanager/blob"
)

// Options configures a Gateway.
type Options struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	LedgerLimit    int
	AttendanceDays int
	Blob           blob.Store
	Logger         *zap.Logger
	Now            func() time.Time
}

// Gateway talks to the backend. It holds no domain state; the session token
// is supplied by the external auth flow through SetSession.
type Gateway struct {
	http           *resty.Client
	apiKey         string
	blob           blob.Store
	log            *zap.Logger
	now            func() time.Time
	ledgerLimit    int
	attendanceDays int

	mu     sync.RWMutex
	token  string
	userID string
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.LedgerLimit <= 0 {
		opts.LedgerLimit = 200
	}
	if opts.AttendanceDays <= 0 {
		opts.AttendanceDays = 31
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetHeader("apikey", opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(opts.Timeout)

	return &Gateway{
		http:           client,
		apiKey:         opts.APIKey,
		blob:           opts.Blob,
		log:            opts.Logger,
		now:            opts.Now,
		ledgerLimit:    opts.LedgerLimit,
		attendanceDays: opts.AttendanceDays,
	}
}

// SetSession installs the bearer token and user id of the signed-in user.
func (g *Gateway) SetSession(token, userID string) {
	g.mu.Lock()
	g.token, g.userID = token, userID
	g.mu.Unlock()
}

// ClearSession drops the current session.
func (g *Gateway) ClearSession() { g.SetSession("", "") }

// UserID returns the signed-in user, "" when signed out.
func (g *Gateway) UserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userID
}

// HasSession reports whether a bearer token is installed.
func (g *Gateway) HasSession() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != ""
}

// Token returns the bearer token for requests: the session's, or the API key.
func (g *Gateway) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token != "" {
		return g.token
	}
	return g.apiKey
}

func (g *Gateway) request(ctx context.Context) *resty.Request {
	return g.http.R().SetContext(ctx).SetAuthToken(g.Token())
}

// selectRows GETs /rest/v1/{table} with PostgREST query params into out.
func (g *Gateway) selectRows(ctx context.Context, op, table string, params map[string]string, out any) error {
	resp, err := g.request(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get("/rest/v1/" + table)
	return classify(op, resp, err)
}

// insertRows POSTs body to /rest/v1/{table} and decodes the inserted rows into out.
func (g *Gateway) insertRows(ctx context.Context, op, table, sel string, body, out any) error {
	req := g.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(body)
	if sel != "" {
		req.SetQueryParam("select", sel)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post("/rest/v1/" + table)
	return classify(op, resp, err)
}

// updateRows PATCHes rows matching id and decodes the updated rows into out.
func (g *Gateway) updateRows(ctx context.Context, op, table, id string, body, out any) error {
	req := g.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Patch("/rest/v1/" + table)
	return classify(op, resp, err)
}

func (g *Gateway) deleteRows(ctx context.Context, op, table, id string) error {
	resp, err := g.request(ctx).
		SetQueryParam("id", "eq."+id).
		Delete("/rest/v1/" + table)
	return classify(op, resp, err)
}

// rpc calls /rest/v1/rpc/{fn} with named arguments.
func (g *Gateway) rpc(ctx context.Context, fn string, args, out any) error {
	req := g.request(ctx).SetBody(args)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post("/rest/v1/rpc/" + fn)
	return classify("rpc "+fn, resp, err)
}

// Ping checks whether the backend is reachable. Any HTTP answer below 500
// counts as reachable; auth is not required.
func (g *Gateway) Ping(ctx context.Context) error {
	resp, err := g.http.R().SetContext(ctx).Get("/rest/v1/")
	if err != nil {
		return &ConnectivityError{Op: "ping", Err: err}
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return &ConnectivityError{Op: "ping", Status: resp.StatusCode(), Err: fmt.Errorf("%s", resp.Status())}
	}
	return nil
}

// single returns the only row of an insert/update representation.
func single[T any](op string, rows []T) (*T, error) {
	if len(rows) == 0 {
		return nil, &ValidationError{Op: op, Status: http.StatusNotFound, Message: "no row returned"}
	}
	return &rows[0], nil
}
