package site

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sitemanager/queue"
	"sitemanager/store"
	"sitemanager/validation"
)

// LoanInput lends one tool to an employee.
type LoanInput struct {
	ItemID     string `json:"item_id" validate:"required"`
	EmployeeID string `json:"employee_id" validate:"required"`
	Signature  string `json:"signature,omitempty"`
}

// LendTool records the loan on the server and takes the tool out of stock
// through the queue.
func (s *Service) LendTool(ctx context.Context, in LoanInput) (*store.Loan, *store.Mutation, error) {
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	projectID, err := s.project()
	if err != nil {
		return nil, nil, err
	}
	item, err := s.db.GetCatalogItem(in.ItemID)
	if err != nil {
		return nil, nil, err
	}
	if item.Kind != store.ItemTool {
		return nil, nil, validation.Field("item_id", "tool")
	}
	onHand, err := s.db.GetStockLevel(projectID, in.ItemID)
	if err != nil {
		return nil, nil, err
	}
	if onHand.LessThan(decimal.NewFromInt(1)) {
		return nil, nil, validation.Field("item_id", "in_stock")
	}
	employee, err := s.db.GetEmployee(in.EmployeeID)
	if err != nil {
		return nil, nil, err
	}
	withdrawal := queue.Payload{
		ProjectID: projectID,
		ItemID:    in.ItemID,
		Delta:     decimal.NewFromInt(-1),
		Kind:      store.KindWithdrawal,
		Signature: in.Signature,
		Notes:     "Loan to " + employee.FullName,
	}
	if err := s.queue.Validate(withdrawal); err != nil {
		return nil, nil, err
	}

	row, err := s.gw.CreateLoan(ctx, projectID, in.ItemID, in.EmployeeID)
	if err != nil {
		return nil, nil, err
	}
	loan := store.Loan{
		ID:           string(row.ID),
		ProjectID:    projectID,
		ItemID:       in.ItemID,
		EmployeeID:   in.EmployeeID,
		CreatedAt:    row.CreatedAt,
		CreatedBy:    s.gw.UserID(),
		ItemName:     item.Name,
		EmployeeName: employee.FullName,
	}
	if err := s.db.PutLoan(loan); err != nil {
		return nil, nil, err
	}

	m, err := s.queue.Enqueue(withdrawal)
	if err != nil {
		return &loan, nil, fmt.Errorf("loan %s recorded but stock movement not queued: %w", loan.ID, err)
	}
	s.log.Info("tool lent", zap.String("loan", loan.ID), zap.String("item", in.ItemID), zap.String("employee", in.EmployeeID))
	return &loan, m, nil
}

// ReturnTool closes a loan and puts the tool back into stock through the queue.
func (s *Service) ReturnTool(ctx context.Context, loanID string) (*store.Mutation, error) {
	loan, err := s.db.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if err := s.gw.DeleteLoan(ctx, loanID); err != nil {
		return nil, err
	}
	if err := s.db.DeleteLoan(loanID); err != nil {
		return nil, err
	}

	m, err := s.queue.Enqueue(queue.Payload{
		ProjectID: loan.ProjectID,
		ItemID:    loan.ItemID,
		Delta:     decimal.NewFromInt(1),
		Kind:      store.KindReturn,
		Notes:     "Returned by " + loan.EmployeeName,
	})
	if err != nil {
		return nil, fmt.Errorf("loan %s closed but stock movement not queued: %w", loanID, err)
	}
	s.log.Info("tool returned", zap.String("loan", loanID), zap.String("item", loan.ItemID))
	return m, nil
}

// Loans lists the tools currently lent out at the active project.
func (s *Service) Loans() ([]store.Loan, error) {
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	return s.db.ListLoans(projectID)
}
