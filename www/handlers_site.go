package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sitemanager/site"
)

func (h *Handlers) apiCheckIn(w http.ResponseWriter, r *http.Request) {
	var in site.CheckInInput
	if !decode(w, r, &in) {
		return
	}
	a, err := h.engine.Site().CheckIn(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, a)
}

func (h *Handlers) apiCheckOut(w http.ResponseWriter, r *http.Request) {
	var in site.CheckOutInput
	if !decode(w, r, &in) {
		return
	}
	a, err := h.engine.Site().CheckOut(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, a)
}

func (h *Handlers) apiCreateRequisition(w http.ResponseWriter, r *http.Request) {
	var in site.RequisitionInput
	if !decode(w, r, &in) {
		return
	}
	req, err := h.engine.Site().CreateRequisition(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, req)
}

func (h *Handlers) apiSetRequisitionStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status" validate:"required"`
	}
	if !decode(w, r, &body) {
		return
	}
	req, err := h.engine.Site().SetRequisitionStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, req)
}

func (h *Handlers) apiLendTool(w http.ResponseWriter, r *http.Request) {
	var in site.LoanInput
	if !decode(w, r, &in) {
		return
	}
	loan, m, err := h.engine.Site().LendTool(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, map[string]any{"loan": loan, "mutation": m})
}

func (h *Handlers) apiReturnTool(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Site().ReturnTool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"mutation": m})
}

func (h *Handlers) apiAddSiteLog(w http.ResponseWriter, r *http.Request) {
	var in site.SiteLogInput
	if !decode(w, r, &in) {
		return
	}
	l, err := h.engine.Site().AddSiteLog(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, l)
}

func (h *Handlers) apiSaveEmployee(w http.ResponseWriter, r *http.Request) {
	var in site.EmployeeInput
	if !decode(w, r, &in) {
		return
	}
	e, err := h.engine.Site().SaveEmployee(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, e)
}

func (h *Handlers) apiSaveCatalogItem(w http.ResponseWriter, r *http.Request) {
	var in site.CatalogItemInput
	if !decode(w, r, &in) {
		return
	}
	it, err := h.engine.Site().SaveCatalogItem(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, it)
}

func (h *Handlers) apiCreateProject(w http.ResponseWriter, r *http.Request) {
	var in site.ProjectInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.engine.Site().CreateProject(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, p)
}
