package site

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sitemanager/remote"
	"sitemanager/snapshot"
	"sitemanager/store"
	"sitemanager/validation"
)

// EmployeeInput creates (empty ID) or updates an employee.
type EmployeeInput struct {
	ID         string          `json:"id"`
	FullName   string          `json:"full_name" validate:"required,max=200"`
	Role       string          `json:"role" validate:"max=100"`
	NationalID string          `json:"national_id" validate:"omitempty,numeric,min=8,max=12"`
	DailyRate  decimal.Decimal `json:"daily_rate"`
	Active     bool            `json:"active"`
}

func (s *Service) SaveEmployee(ctx context.Context, in EmployeeInput) (*store.Employee, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.DailyRate.IsNegative() {
		return nil, validation.Field("daily_rate", "gte=0")
	}
	row := remote.EmployeeRow{
		ID:        in.ID,
		FullName:  in.FullName,
		Role:      optional(in.Role),
		DNI:       optional(in.NationalID),
		DailyRate: in.DailyRate,
		IsActive:  in.Active,
	}
	if p, err := s.db.ActiveProject(); err == nil && p != "" {
		row.ProjectID = &p
	}
	saved, err := s.gw.SaveEmployee(ctx, row)
	if err != nil {
		return nil, err
	}
	e := snapshot.Employee(*saved)
	if err := s.db.PutEmployee(e); err != nil {
		return nil, err
	}
	s.log.Info("employee saved", zap.String("id", e.ID))
	return &e, nil
}

// CatalogItemInput creates (empty ID) or updates a catalog item.
type CatalogItemInput struct {
	ID               string          `json:"id"`
	SKU              string          `json:"sku" validate:"required,max=50"`
	Name             string          `json:"name" validate:"required,max=200"`
	Unit             string          `json:"unit" validate:"required,max=20"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	Supplier         string          `json:"supplier" validate:"max=200"`
	Description      string          `json:"description" validate:"max=1000"`
	Kind             string          `json:"kind" validate:"omitempty,oneof=consumable tool"`
}

func (s *Service) SaveCatalogItem(ctx context.Context, in CatalogItemInput) (*store.CatalogItem, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.UnitPrice.IsNegative() {
		return nil, validation.Field("unit_price", "gte=0")
	}
	if in.ReorderThreshold.IsNegative() {
		return nil, validation.Field("reorder_threshold", "gte=0")
	}
	if existing, err := s.db.GetCatalogItemBySKU(in.SKU); err == nil && existing.ID != in.ID {
		return nil, validation.Field("sku", "unique")
	}

	threshold := in.ReorderThreshold
	row := remote.ItemRow{
		ID:            in.ID,
		SKU:           in.SKU,
		Name:          in.Name,
		Unit:          in.Unit,
		Price:         in.UnitPrice,
		Supplier:      optional(in.Supplier),
		MinStockAlert: &threshold,
		Description:   optional(in.Description),
		ItemType:      itemType(in.Kind),
	}
	saved, err := s.gw.SaveCatalogItem(ctx, row)
	if err != nil {
		return nil, err
	}
	it := snapshot.CatalogItem(*saved)
	if err := s.db.PutCatalogItem(it); err != nil {
		return nil, err
	}
	s.log.Info("catalog item saved", zap.String("id", it.ID), zap.String("sku", it.SKU))
	return &it, nil
}

// ProjectInput creates a project.
type ProjectInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Location string `json:"location" validate:"max=300"`
}

// CreateProject creates a project on the server and adds it to the local
// project list. It does not switch to it.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (*store.Project, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	id, err := s.gw.CreateProject(ctx, in.Name, in.Location)
	if err != nil {
		return nil, err
	}
	p := store.Project{ID: id, Name: in.Name}
	if err := s.db.PutProject(p); err != nil {
		return nil, err
	}
	s.log.Info("project created", zap.String("id", id), zap.String("name", in.Name))
	return &p, nil
}

func itemType(kind string) string {
	if kind == store.ItemTool {
		return "TOOL"
	}
	return "MATERIAL"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
