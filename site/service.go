// Package site implements the online-first site operations: attendance,
// requisitions, tool loans, the site journal and catalog administration.
// Each operation writes to the backend first and mirrors the accepted row
// locally. Anything that moves stock goes through the mutation queue.
package site

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"sitemanager/queue"
	"sitemanager/remote"
	"sitemanager/store"
)

// ErrNoProject is returned by project-scoped operations when no project is selected.
var ErrNoProject = errors.New("no active project")

// Gateway is the part of the backend the site operations use.
type Gateway interface {
	CheckIn(ctx context.Context, projectID, employeeID, workDate, gps string) (*remote.AttendanceRow, error)
	CheckOut(ctx context.Context, attendanceID string, at time.Time, gps string) (*remote.AttendanceRow, error)
	CreateRequisition(ctx context.Context, projectID string, lines []remote.RequisitionLine) (*remote.RequisitionRow, error)
	UpdateRequisitionStatus(ctx context.Context, requisitionID, status string) error
	ReceiveRequisition(ctx context.Context, requisitionID string) error
	CreateLoan(ctx context.Context, projectID, itemID, employeeID string) (*remote.LoanRow, error)
	DeleteLoan(ctx context.Context, loanID string) error
	CreateSiteLog(ctx context.Context, projectID, category, content string) (*remote.SiteLogRow, error)
	SaveEmployee(ctx context.Context, e remote.EmployeeRow) (*remote.EmployeeRow, error)
	SaveCatalogItem(ctx context.Context, it remote.ItemRow) (*remote.ItemRow, error)
	CreateProject(ctx context.Context, name, location string) (string, error)
	UserID() string
}

// Enqueuer records stock movements.
type Enqueuer interface {
	Validate(p queue.Payload) error
	Enqueue(p queue.Payload) (*store.Mutation, error)
}

// EventEmitter is the interface the site operations use to emit events.
type EventEmitter interface {
	EmitRequisitionStatusChanged(requisitionID, oldStatus, newStatus string)
	EmitRefreshNeeded(reason string)
}

// Service runs site operations against the active project.
type Service struct {
	db      *store.DB
	gw      Gateway
	queue   Enqueuer
	emitter EventEmitter
	log     *zap.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(db *store.DB, gw Gateway, q Enqueuer, emitter EventEmitter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, gw: gw, queue: q, emitter: emitter, log: log, now: time.Now}
}

func (s *Service) project() (string, error) {
	p, err := s.db.ActiveProject()
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", ErrNoProject
	}
	return p, nil
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Service) employeeName(id string) string {
	if e, err := s.db.GetEmployee(id); err == nil {
		return e.FullName
	}
	return "N/A"
}
