package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Employee is a site worker.
type Employee struct {
	ID         string          `json:"id"`
	FullName   string          `json:"full_name"`
	Role       string          `json:"role"`
	NationalID string          `json:"national_id"`
	DailyRate  decimal.Decimal `json:"daily_rate"`
	ProjectID  string          `json:"project_id"`
	Active     bool            `json:"active"`
}

// Attendance is one employee's check-in/out for a work date.
type Attendance struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	EmployeeID   string     `json:"employee_id"`
	WorkDate     string     `json:"work_date"` // YYYY-MM-DD
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time"`
	CheckInGPS   string     `json:"check_in_gps"`
	CheckOutGPS  string     `json:"check_out_gps"`
	EmployeeName string     `json:"employee_name"`
}

// Open reports whether the employee has not checked out yet.
func (a Attendance) Open() bool { return a.CheckOutTime == nil }

const employeeSelectCols = `id, full_name, role, national_id, daily_rate, project_id, active`

func scanEmployee(sc interface{ Scan(...any) error }) (Employee, error) {
	var e Employee
	var active int
	err := sc.Scan(&e.ID, &e.FullName, &e.Role, &e.NationalID, &e.DailyRate, &e.ProjectID, &active)
	e.Active = active != 0
	return e, err
}

// ListEmployees returns employees by name, optionally only active ones.
func (db *DB) ListEmployees(activeOnly bool) ([]Employee, error) {
	q := `SELECT ` + employeeSelectCols + ` FROM employees`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	rows, err := db.Query(q + ` ORDER BY full_name`)
	if err != nil {
		return nil, storageErr("list employees", err)
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, storageErr("list employees", err)
		}
		out = append(out, e)
	}
	return out, storageErr("list employees", rows.Err())
}

func (db *DB) GetEmployee(id string) (*Employee, error) {
	e, err := scanEmployee(db.QueryRow(`SELECT `+employeeSelectCols+` FROM employees WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get employee", err)
	}
	return &e, nil
}

func (db *DB) PutEmployee(e Employee) error {
	_, err := db.exec("put employee", []string{TableEmployees},
		`INSERT INTO employees (`+employeeSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, role = excluded.role,
			national_id = excluded.national_id, daily_rate = excluded.daily_rate,
			project_id = excluded.project_id, active = excluded.active`,
		e.ID, e.FullName, e.Role, e.NationalID, e.DailyRate, e.ProjectID, boolInt(e.Active))
	return err
}

const attendanceSelectCols = `id, project_id, employee_id, work_date, check_in_time, check_out_time,
	check_in_gps, check_out_gps, employee_name`

func scanAttendance(sc interface{ Scan(...any) error }) (Attendance, error) {
	var a Attendance
	var in, out string
	err := sc.Scan(&a.ID, &a.ProjectID, &a.EmployeeID, &a.WorkDate, &in, &out,
		&a.CheckInGPS, &a.CheckOutGPS, &a.EmployeeName)
	a.CheckInTime = scanTime(in)
	a.CheckOutTime = scanTimePtr(out)
	return a, err
}

// ListAttendance returns a project's attendance for one work date.
func (db *DB) ListAttendance(projectID, workDate string) ([]Attendance, error) {
	rows, err := db.Query(`SELECT `+attendanceSelectCols+` FROM attendance
		WHERE project_id = ? AND work_date = ? ORDER BY employee_name`, projectID, workDate)
	if err != nil {
		return nil, storageErr("list attendance", err)
	}
	defer rows.Close()
	var out []Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, storageErr("list attendance", err)
		}
		out = append(out, a)
	}
	return out, storageErr("list attendance", rows.Err())
}

// GetOpenAttendance finds the employee's record for workDate without a check-out.
func (db *DB) GetOpenAttendance(employeeID, workDate string) (*Attendance, error) {
	a, err := scanAttendance(db.QueryRow(`SELECT `+attendanceSelectCols+` FROM attendance
		WHERE employee_id = ? AND work_date = ? AND check_out_time = ''
		ORDER BY check_in_time DESC LIMIT 1`, employeeID, workDate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get open attendance", err)
	}
	return &a, nil
}

func (db *DB) PutAttendance(a Attendance) error {
	_, err := db.exec("put attendance", []string{TableAttendance}, insertAttendanceSQL, attendanceArgs(a)...)
	return err
}

const insertAttendanceSQL = `INSERT INTO attendance (` + attendanceSelectCols + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET check_out_time = excluded.check_out_time,
		check_out_gps = excluded.check_out_gps, employee_name = excluded.employee_name`

func attendanceArgs(a Attendance) []any {
	return []any{a.ID, a.ProjectID, a.EmployeeID, a.WorkDate, formatTime(a.CheckInTime),
		formatTimePtr(a.CheckOutTime), a.CheckInGPS, a.CheckOutGPS, a.EmployeeName}
}
