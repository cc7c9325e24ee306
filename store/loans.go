package store

import (
	"database/sql"
	"errors"
	"time"
)

// Loan is a tool currently lent to an employee.
type Loan struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ItemID       string    `json:"item_id"`
	EmployeeID   string    `json:"employee_id"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
	ItemName     string    `json:"item_name"`
	EmployeeName string    `json:"employee_name"`
}

const loanSelectCols = `id, project_id, item_id, employee_id, created_at, created_by, item_name, employee_name`

func scanLoan(sc interface{ Scan(...any) error }) (Loan, error) {
	var l Loan
	var created string
	err := sc.Scan(&l.ID, &l.ProjectID, &l.ItemID, &l.EmployeeID, &created, &l.CreatedBy, &l.ItemName, &l.EmployeeName)
	l.CreatedAt = scanTime(created)
	return l, err
}

func (db *DB) ListLoans(projectID string) ([]Loan, error) {
	rows, err := db.Query(`SELECT `+loanSelectCols+` FROM active_loans WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, storageErr("list loans", err)
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, storageErr("list loans", err)
		}
		out = append(out, l)
	}
	return out, storageErr("list loans", rows.Err())
}

func (db *DB) GetLoan(id string) (*Loan, error) {
	l, err := scanLoan(db.QueryRow(`SELECT `+loanSelectCols+` FROM active_loans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get loan", err)
	}
	return &l, nil
}

func (db *DB) PutLoan(l Loan) error {
	_, err := db.exec("put loan", []string{TableActiveLoans},
		`INSERT OR REPLACE INTO active_loans (`+loanSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, l.ItemID, l.EmployeeID, formatTime(l.CreatedAt), l.CreatedBy, l.ItemName, l.EmployeeName)
	return err
}

func (db *DB) DeleteLoan(id string) error {
	_, err := db.exec("delete loan", []string{TableActiveLoans}, `DELETE FROM active_loans WHERE id = ?`, id)
	return err
}
