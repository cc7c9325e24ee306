package www

import (
	"net/http"

	"sitemanager/store"
)

// collection is a read over the local mirror and the tables whose changes
// invalidate it.
type collection struct {
	query  func() (any, error)
	tables []string
}

func (h *Handlers) serveCollection(c collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := c.query()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, v)
	}
}

// scoped wraps a project-scoped read so it runs against the active project.
func (h *Handlers) scoped(fn func(project string) (any, error)) func() (any, error) {
	return func() (any, error) {
		p, err := h.engine.DB().ActiveProject()
		if err != nil {
			return nil, err
		}
		return fn(p)
	}
}

func (h *Handlers) buildCollections() map[string]collection {
	db := h.engine.DB()
	q := h.engine.Queue()
	s := h.engine.Site()

	return map[string]collection{
		"projects": {
			query:  func() (any, error) { return db.ListProjects() },
			tables: []string{store.TableProjects},
		},
		"catalog": {
			query:  func() (any, error) { return db.ListCatalogItems("") },
			tables: []string{store.TableCatalogItems},
		},
		"employees": {
			query:  func() (any, error) { return db.ListEmployees(true) },
			tables: []string{store.TableEmployees},
		},
		"stock": {
			query:  h.scoped(func(p string) (any, error) { return db.ListStock(p) }),
			tables: []string{store.TableStockLevels, store.TableCatalogItems, store.TableSettings},
		},
		"low-stock": {
			query:  h.scoped(func(p string) (any, error) { return db.ListLowStock(p) }),
			tables: []string{store.TableStockLevels, store.TableCatalogItems, store.TableSettings},
		},
		"ledger": {
			query:  h.scoped(func(p string) (any, error) { return db.ListLedger(p, 100) }),
			tables: []string{store.TableLedgerEntries, store.TableSettings},
		},
		"queue": {
			query:  func() (any, error) { return q.List() },
			tables: []string{store.TablePendingMutations},
		},
		"pending-count": {
			query:  func() (any, error) { return q.PendingCount() },
			tables: []string{store.TablePendingMutations},
		},
		"attendance": {
			query:  func() (any, error) { return s.Attendance() },
			tables: []string{store.TableAttendance, store.TableSettings},
		},
		"requisitions": {
			query:  func() (any, error) { return s.Requisitions() },
			tables: []string{store.TableRequisitions, store.TableRequisitionItems, store.TableSettings},
		},
		"loans": {
			query:  func() (any, error) { return s.Loans() },
			tables: []string{store.TableActiveLoans, store.TableSettings},
		},
		"site-logs": {
			query:  func() (any, error) { return s.SiteLogs(50) },
			tables: []string{store.TableSiteLogs, store.TableSettings},
		},
	}
}
