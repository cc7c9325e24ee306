package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mutation statuses.
const (
	MutationPending  = "pending"
	MutationInFlight = "in_flight"
)

// ErrMutationInFlight is returned when an operation needs a pending mutation
// but the drainer currently holds it.
var ErrMutationInFlight = errors.New("mutation is in flight")

// Mutation is a locally originated stock movement awaiting upload.
// Delta has already been applied to the local stock level.
type Mutation struct {
	ID            int64           `json:"id"`
	ClientRef     string          `json:"client_ref"`
	ProjectID     string          `json:"project_id"`
	ItemID        string          `json:"item_id"`
	Delta         decimal.Decimal `json:"delta"`
	Payload       []byte          `json:"-"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	LastErrorKind string          `json:"last_error_kind"`
	CreatedAt     time.Time       `json:"created_at"`
}

var mutationTables = []string{TablePendingMutations, TableStockLevels}

const mutationSelectCols = `id, client_ref, project_id, item_id, delta, payload, status, attempts,
	last_error, last_error_kind, created_at`

func scanMutation(sc interface{ Scan(...any) error }) (Mutation, error) {
	var m Mutation
	var created string
	err := sc.Scan(&m.ID, &m.ClientRef, &m.ProjectID, &m.ItemID, &m.Delta, &m.Payload, &m.Status,
		&m.Attempts, &m.LastError, &m.LastErrorKind, &created)
	m.CreatedAt = scanTime(created)
	return m, err
}

// EnqueueMutation durably records m and applies its delta to the local stock
// level in one transaction. The assigned id is the FIFO order key.
func (db *DB) EnqueueMutation(m *Mutation) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	err := db.WithTx(mutationTables, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO pending_mutations (client_ref, project_id, item_id, delta, payload, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ClientRef, m.ProjectID, m.ItemID, m.Delta.String(), m.Payload, MutationPending, formatTime(m.CreatedAt))
		if err != nil {
			return storageErr("enqueue mutation", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return storageErr("enqueue mutation", err)
		}
		return storageErr("enqueue mutation: apply delta", addStock(tx, m.ProjectID, m.ItemID, m.Delta))
	})
	if err != nil {
		return 0, err
	}
	m.Status = MutationPending
	return m.ID, nil
}

// ListPendingMutations returns pending mutations in FIFO order.
func (db *DB) ListPendingMutations(limit int) ([]Mutation, error) {
	q := `SELECT ` + mutationSelectCols + ` FROM pending_mutations WHERE status = ? ORDER BY id`
	args := []any{MutationPending}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryMutations("list pending mutations", q, args...)
}

// ListMutations returns every queued mutation, in flight or not, in FIFO order.
func (db *DB) ListMutations() ([]Mutation, error) {
	return db.queryMutations("list mutations", `SELECT `+mutationSelectCols+` FROM pending_mutations ORDER BY id`)
}

func (db *DB) queryMutations(op, q string, args ...any) ([]Mutation, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	var out []Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, m)
	}
	return out, storageErr(op, rows.Err())
}

func (db *DB) GetMutation(id int64) (*Mutation, error) {
	m, err := scanMutation(db.QueryRow(`SELECT `+mutationSelectCols+` FROM pending_mutations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get mutation", err)
	}
	return &m, nil
}

// CountPendingMutations counts queued mutations regardless of status.
func (db *DB) CountPendingMutations() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pending_mutations`).Scan(&n); err != nil {
		return 0, storageErr("count mutations", err)
	}
	return n, nil
}

// MarkMutationInFlight claims a pending mutation for upload and counts the attempt.
func (db *DB) MarkMutationInFlight(id int64) error {
	res, err := db.exec("mark mutation in flight", []string{TablePendingMutations},
		`UPDATE pending_mutations SET status = ?, attempts = attempts + 1 WHERE id = ? AND status = ?`,
		MutationInFlight, id, MutationPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMutation removes a delivered mutation. Its delta stays applied.
func (db *DB) DeleteMutation(id int64) error {
	_, err := db.exec("delete mutation", []string{TablePendingMutations},
		`DELETE FROM pending_mutations WHERE id = ?`, id)
	return err
}

// RevertMutation returns a failed mutation to pending with its error recorded.
func (db *DB) RevertMutation(id int64, lastErr, kind string) error {
	_, err := db.exec("revert mutation", []string{TablePendingMutations},
		`UPDATE pending_mutations SET status = ?, last_error = ?, last_error_kind = ? WHERE id = ?`,
		MutationPending, lastErr, kind, id)
	return err
}

// ClearMutationError forgets the recorded failure of a pending mutation.
func (db *DB) ClearMutationError(id int64) error {
	res, err := db.exec("clear mutation error", []string{TablePendingMutations},
		`UPDATE pending_mutations SET last_error = '', last_error_kind = '' WHERE id = ? AND status = ?`,
		id, MutationPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DismissMutation deletes a pending mutation and reverses its delta on the
// local stock level, atomically. In-flight mutations cannot be dismissed.
func (db *DB) DismissMutation(id int64) (*Mutation, error) {
	var m Mutation
	err := db.WithTx(mutationTables, func(tx *sql.Tx) error {
		var err error
		m, err = scanMutation(tx.QueryRow(`SELECT `+mutationSelectCols+` FROM pending_mutations WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return storageErr("dismiss mutation", err)
		}
		if m.Status == MutationInFlight {
			return ErrMutationInFlight
		}
		if _, err := tx.Exec(`DELETE FROM pending_mutations WHERE id = ?`, id); err != nil {
			return storageErr("dismiss mutation", err)
		}
		return storageErr("dismiss mutation: reverse delta", addStock(tx, m.ProjectID, m.ItemID, m.Delta.Neg()))
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecoverInFlight resets mutations left in flight by an interrupted drain.
func (db *DB) RecoverInFlight() (int64, error) {
	res, err := db.exec("recover in-flight mutations", []string{TablePendingMutations},
		`UPDATE pending_mutations SET status = ? WHERE status = ?`, MutationPending, MutationInFlight)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// rebasePending re-applies the deltas of a project's pending mutations onto
// freshly replaced stock levels. In-flight mutations are left out: the
// server may already count them, so its figure is taken as is.
func rebasePending(tx *sql.Tx, projectID string) (int, error) {
	rows, err := tx.Query(`SELECT item_id, delta FROM pending_mutations WHERE project_id = ? AND status = ? ORDER BY id`,
		projectID, MutationPending)
	if err != nil {
		return 0, err
	}
	type delta struct {
		itemID string
		qty    decimal.Decimal
	}
	var deltas []delta
	for rows.Next() {
		var d delta
		if err := rows.Scan(&d.itemID, &d.qty); err != nil {
			rows.Close()
			return 0, err
		}
		deltas = append(deltas, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, d := range deltas {
		if err := addStock(tx, projectID, d.itemID, d.qty); err != nil {
			return 0, fmt.Errorf("rebase %s: %w", d.itemID, err)
		}
	}
	return len(deltas), nil
}
