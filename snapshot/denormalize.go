package snapshot

import (
	"strings"

	"github.com/shopspring/decimal"

	"sitemanager/remote"
	"sitemanager/store"
)

const unknownName = "N/A"

// LedgerKind maps a backend transaction type onto a ledger kind.
func LedgerKind(txType string) string {
	switch strings.ToUpper(txType) {
	case remote.TxOut:
		return store.KindWithdrawal
	case remote.TxIn:
		return store.KindReceipt
	default:
		return store.KindAdjustment
	}
}

func itemKind(itemType string) string {
	switch strings.ToUpper(itemType) {
	case "TOOL", "HERRAMIENTA":
		return store.ItemTool
	default:
		return store.ItemConsumable
	}
}

// Denormalize converts a raw backend snapshot into local rows, copying
// display fields (item names and units, employee and author names) onto the
// rows that reference them.
func Denormalize(raw *remote.Snapshot) *store.Snapshot {
	snap := &store.Snapshot{ProjectID: raw.ProjectID, FetchedAt: raw.FetchedAt}

	items := make(map[string]remote.ItemRow, len(raw.Items))
	for _, it := range raw.Items {
		items[it.ID] = it
		snap.Items = append(snap.Items, CatalogItem(it))
	}
	// skuRef prefers the embedded projection and falls back to the catalog.
	skuRef := func(embed *remote.SKURef, itemID string) remote.SKURef {
		if embed != nil && embed.Name != "" {
			return *embed
		}
		if it, ok := items[itemID]; ok {
			return remote.SKURef{Name: it.Name, Unit: it.Unit, SKU: it.SKU}
		}
		return remote.SKURef{Name: unknownName, Unit: unknownName}
	}

	for _, p := range raw.Projects {
		snap.Projects = append(snap.Projects, store.Project{ID: p.ID, Name: p.Name})
	}

	for _, s := range raw.Stock {
		snap.Stock = append(snap.Stock, store.StockLevel{ProjectID: s.ProjectID, ItemID: s.SKUID, Quantity: s.Quantity})
	}

	for _, l := range raw.Ledger {
		ref := skuRef(l.MasterSKU, l.SKUID)
		snap.Ledger = append(snap.Ledger, store.LedgerEntry{
			ID:          string(l.ID),
			ProjectID:   l.ProjectID,
			ItemID:      l.SKUID,
			Quantity:    l.QuantityChange,
			Kind:        LedgerKind(l.TransactionType),
			CreatedAt:   l.CreatedAt,
			ActorID:     remote.Str(l.UserID),
			EvidenceURL: remote.Str(l.EvidenceURL),
			Notes:       remote.Str(l.Notes),
			ItemName:    ref.Name,
			ItemUnit:    ref.Unit,
			ItemSKU:     ref.SKU,
		})
	}

	employees := make(map[string]string, len(raw.Employees))
	for _, e := range raw.Employees {
		employees[e.ID] = e.FullName
		snap.Employees = append(snap.Employees, Employee(e))
	}
	employeeName := func(embed *remote.NameRef, id string) string {
		if embed != nil && embed.FullName != "" {
			return embed.FullName
		}
		if n, ok := employees[id]; ok {
			return n
		}
		return unknownName
	}

	for _, a := range raw.Attendance {
		snap.Attendance = append(snap.Attendance, Attendance(a, raw.ProjectID, employeeName(nil, a.EmployeeID)))
	}

	for _, r := range raw.Requisitions {
		snap.Requisitions = append(snap.Requisitions, Requisition(r, skuRef))
	}

	for _, l := range raw.Loans {
		itemName := unknownName
		if l.MasterSKU != nil && l.MasterSKU.Name != "" {
			itemName = l.MasterSKU.Name
		} else if it, ok := items[l.SKUID]; ok {
			itemName = it.Name
		}
		snap.Loans = append(snap.Loans, store.Loan{
			ID:           string(l.ID),
			ProjectID:    l.ProjectID,
			ItemID:       l.SKUID,
			EmployeeID:   l.EmployeeID,
			CreatedAt:    l.CreatedAt,
			CreatedBy:    remote.Str(l.CreatedBy),
			ItemName:     itemName,
			EmployeeName: employeeName(l.Employee, l.EmployeeID),
		})
	}

	for _, l := range raw.SiteLogs {
		snap.SiteLogs = append(snap.SiteLogs, SiteLog(l))
	}
	return snap
}

// CatalogItem converts one backend catalog row.
func CatalogItem(it remote.ItemRow) store.CatalogItem {
	threshold := decimal.Zero
	if it.MinStockAlert != nil {
		threshold = *it.MinStockAlert
	}
	return store.CatalogItem{
		ID:               it.ID,
		SKU:              it.SKU,
		Name:             it.Name,
		Unit:             it.Unit,
		UnitPrice:        it.Price,
		ReorderThreshold: threshold,
		Supplier:         remote.Str(it.Supplier),
		Description:      remote.Str(it.Description),
		Kind:             itemKind(it.ItemType),
	}
}

func Employee(e remote.EmployeeRow) store.Employee {
	return store.Employee{
		ID:         e.ID,
		FullName:   e.FullName,
		Role:       remote.Str(e.Role),
		NationalID: remote.Str(e.DNI),
		DailyRate:  e.DailyRate,
		ProjectID:  remote.Str(e.ProjectID),
		Active:     e.IsActive,
	}
}

// Attendance converts one attendance row. Rows without a project are
// attributed to projectID.
func Attendance(a remote.AttendanceRow, projectID, employeeName string) store.Attendance {
	if p := remote.Str(a.ProjectID); p != "" {
		projectID = p
	}
	return store.Attendance{
		ID:           string(a.ID),
		ProjectID:    projectID,
		EmployeeID:   a.EmployeeID,
		WorkDate:     a.WorkDate,
		CheckInTime:  a.CheckInTime,
		CheckOutTime: a.CheckOutTime,
		CheckInGPS:   remote.Str(a.CheckInGPS),
		CheckOutGPS:  remote.Str(a.CheckOutGPS),
		EmployeeName: employeeName,
	}
}

// Requisition converts one backend requisition with its lines.
func Requisition(r remote.RequisitionRow, skuRef func(*remote.SKURef, string) remote.SKURef) store.Requisition {
	out := store.Requisition{
		ID:          string(r.ID),
		ProjectID:   r.ProjectID,
		RequestedBy: remote.Str(r.UserID),
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
	for _, it := range r.Items {
		ref := remote.SKURef{Name: unknownName, Unit: unknownName}
		if skuRef != nil {
			ref = skuRef(it.MasterSKU, it.SKUID)
		} else if it.MasterSKU != nil {
			ref = *it.MasterSKU
		}
		out.Items = append(out.Items, store.RequisitionItem{
			ID:                string(it.ID),
			RequisitionID:     string(r.ID),
			ItemID:            it.SKUID,
			QuantityRequested: it.QuantityRequested,
			QuantityReceived:  it.QuantityReceived,
			ItemName:          ref.Name,
			ItemUnit:          ref.Unit,
		})
	}
	return out
}

// SiteLog converts one backend site log entry.
func SiteLog(l remote.SiteLogRow) store.SiteLog {
	author := unknownName
	if l.Profile != nil && l.Profile.FullName != "" {
		author = l.Profile.FullName
	}
	return store.SiteLog{
		ID:         string(l.ID),
		ProjectID:  l.ProjectID,
		AuthorID:   remote.Str(l.UserID),
		Category:   l.Category,
		Content:    l.Content,
		CreatedAt:  l.CreatedAt,
		AuthorName: author,
	}
}
