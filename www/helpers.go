package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sitemanager/remote"
	"sitemanager/site"
	"sitemanager/store"
	"sitemanager/validation"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr writes err with the status its kind maps to. Field errors are
// included so forms can highlight them.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error(), "kind": kindFor(err)}
	var ve *validation.Error
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	var rv *remote.ValidationError
	var ra *remote.AuthError
	var rc *remote.ConnectivityError
	switch {
	case validation.Is(err), errors.As(err, &rv):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ra):
		return http.StatusUnauthorized
	case errors.As(err, &rc):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, site.ErrNoProject),
		errors.Is(err, store.ErrMutationInFlight),
		errors.Is(err, store.ErrStaleSnapshot):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	if validation.Is(err) {
		return remote.KindValidation
	}
	var se *store.StorageError
	if errors.As(err, &se) {
		return "storage"
	}
	return remote.KindOf(err)
}

// decode reads a JSON body into v and runs its validate tags. It writes the
// error response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeErr(w, err)
		return false
	}
	return true
}

func parseID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}
