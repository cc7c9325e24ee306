package www

import (
	"net/http"

	"github.com/shopspring/decimal"

	"sitemanager/queue"
	"sitemanager/site"
)

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Status())
}

func (h *Handlers) apiSwitchProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id" validate:"required"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.SwitchProject(req.ProjectID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "project_id": req.ProjectID})
}

// apiEnqueueMovement records a stock movement. It applies locally and is
// accepted whether or not the backend is reachable.
func (h *Handlers) apiEnqueueMovement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string          `json:"project_id"`
		ItemID    string          `json:"item_id"`
		Kind      string          `json:"kind"`
		Delta     decimal.Decimal `json:"delta"`
		Signature string          `json:"signature"`
		Notes     string          `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		p, err := h.engine.DB().ActiveProject()
		if err != nil {
			writeErr(w, err)
			return
		}
		if p == "" {
			writeErr(w, site.ErrNoProject)
			return
		}
		req.ProjectID = p
	}

	m, err := h.engine.Queue().Enqueue(queue.Payload{
		ProjectID: req.ProjectID,
		ItemID:    req.ItemID,
		Kind:      req.Kind,
		Delta:     req.Delta,
		Signature: req.Signature,
		Notes:     req.Notes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, m)
}

func (h *Handlers) apiDismissMutation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mutation ID")
		return
	}
	m, err := h.engine.Queue().Dismiss(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, m)
}

func (h *Handlers) apiRetryMutation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mutation ID")
		return
	}
	if err := h.engine.Queue().Retry(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiDownload(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Download(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handlers) apiDrain(w http.ResponseWriter, r *http.Request) {
	res := h.engine.Drain(r.Context())
	resp := struct {
		queue.DrainResult
		Error string `json:"error,omitempty"`
	}{DrainResult: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, resp)
}
