package site

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"sitemanager/snapshot"
	"sitemanager/store"
	"sitemanager/validation"
)

// CheckInInput marks an employee present today. GPS is an opaque location
// string captured by the client.
type CheckInInput struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	GPS        string `json:"gps" validate:"max=100"`
}

// CheckIn records today's arrival for an employee at the active project.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*store.Attendance, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	date := s.today()
	if _, err := s.db.GetOpenAttendance(in.EmployeeID, date); err == nil {
		return nil, validation.Field("employee_id", "already_checked_in")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	row, err := s.gw.CheckIn(ctx, projectID, in.EmployeeID, date, in.GPS)
	if err != nil {
		return nil, err
	}
	a := snapshot.Attendance(*row, projectID, s.employeeName(in.EmployeeID))
	if err := s.db.PutAttendance(a); err != nil {
		return nil, err
	}
	s.log.Info("checked in", zap.String("employee", in.EmployeeID), zap.String("date", date))
	return &a, nil
}

// CheckOutInput closes an employee's open attendance for today.
type CheckOutInput struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	GPS        string `json:"gps" validate:"max=100"`
}

func (s *Service) CheckOut(ctx context.Context, in CheckOutInput) (*store.Attendance, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	open, err := s.db.GetOpenAttendance(in.EmployeeID, s.today())
	if errors.Is(err, store.ErrNotFound) {
		return nil, validation.Field("employee_id", "not_checked_in")
	}
	if err != nil {
		return nil, err
	}

	row, err := s.gw.CheckOut(ctx, open.ID, s.now(), in.GPS)
	if err != nil {
		return nil, err
	}
	a := snapshot.Attendance(*row, open.ProjectID, open.EmployeeName)
	if err := s.db.PutAttendance(a); err != nil {
		return nil, err
	}
	s.log.Info("checked out", zap.String("employee", in.EmployeeID), zap.String("attendance", a.ID))
	return &a, nil
}

// Attendance lists today's attendance at the active project.
func (s *Service) Attendance() ([]store.Attendance, error) {
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	return s.db.ListAttendance(projectID, s.today())
}
