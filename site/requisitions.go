package site

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sitemanager/remote"
	"sitemanager/snapshot"
	"sitemanager/store"
	"sitemanager/validation"
)

// Requisition statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusReceived = "RECEIVED"
)

// validTransitions defines which status transitions are allowed.
var validTransitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusReceived},
}

// IsValidTransition checks if a requisition status transition is allowed.
func IsValidTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func IsTerminal(status string) bool {
	return status == StatusReceived || status == StatusRejected
}

// RequisitionLine is one requested item.
type RequisitionLine struct {
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// RequisitionInput is a new material request.
type RequisitionInput struct {
	Lines []RequisitionLine `json:"lines" validate:"required,min=1,dive"`
}

// CreateRequisition files a PENDING requisition for the active project.
func (s *Service) CreateRequisition(ctx context.Context, in RequisitionInput) (*store.Requisition, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	lines := make([]remote.RequisitionLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		if !l.Quantity.IsPositive() {
			return nil, validation.Field(fmt.Sprintf("lines[%d].quantity", i), "positive")
		}
		lines = append(lines, remote.RequisitionLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}

	row, err := s.gw.CreateRequisition(ctx, projectID, lines)
	if err != nil {
		return nil, err
	}
	req := snapshot.Requisition(*row, s.skuRef)
	if err := s.db.PutRequisition(req); err != nil {
		return nil, err
	}
	s.log.Info("requisition created", zap.String("id", req.ID), zap.Int("lines", len(req.Items)))
	return &req, nil
}

// skuRef names a requisition line from the embed or the local catalog.
func (s *Service) skuRef(embed *remote.SKURef, itemID string) remote.SKURef {
	if embed != nil && embed.Name != "" {
		return *embed
	}
	if it, err := s.db.GetCatalogItem(itemID); err == nil {
		return remote.SKURef{Name: it.Name, Unit: it.Unit, SKU: it.SKU}
	}
	return remote.SKURef{Name: "N/A", Unit: "N/A"}
}

// SetRequisitionStatus moves a requisition along its lifecycle. Receiving
// books the goods on the server, which writes the ledger; a refresh is
// requested so the new stock shows up.
func (s *Service) SetRequisitionStatus(ctx context.Context, id, status string) (*store.Requisition, error) {
	req, err := s.db.GetRequisition(id)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(req.Status, status) {
		return nil, validation.Field("status", fmt.Sprintf("transition_%s_to_%s", req.Status, status))
	}

	if status == StatusReceived {
		err = s.gw.ReceiveRequisition(ctx, id)
	} else {
		err = s.gw.UpdateRequisitionStatus(ctx, id, status)
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.SetRequisitionStatus(id, status); err != nil {
		return nil, err
	}

	old := req.Status
	req.Status = status
	s.log.Info("requisition status changed", zap.String("id", id), zap.String("from", old), zap.String("to", status))
	if s.emitter != nil {
		s.emitter.EmitRequisitionStatusChanged(id, old, status)
		if status == StatusReceived {
			s.emitter.EmitRefreshNeeded("requisition received")
		}
	}
	return req, nil
}

// Requisitions lists the active project's requisitions.
func (s *Service) Requisitions() ([]store.Requisition, error) {
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	return s.db.ListRequisitions(projectID)
}
