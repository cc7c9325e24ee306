// Package www is the HTTP boundary of the device: JSON reads and live
// streams over the local mirror, stock movements through the queue, sync
// controls, and the online site operations.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sitemanager/engine"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine      *engine.Engine
	sessions    *sessionStore
	eventHub    *EventHub
	collections map[string]collection
	log         *zap.Logger
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	log := eng.Logger("www")
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(log),
		log:      log,
	}
	h.collections = h.buildCollections()

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// SSE (no auth, site tablets stay on the board)
	r.Get("/events", h.eventHub.HandleSSE)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.apiStatus)
		r.Post("/session", h.apiLogin)
		r.Delete("/session", h.apiLogout)

		// Local reads, one-shot and live
		for name, c := range h.collections {
			r.Get("/"+name, h.serveCollection(c))
			r.Get("/watch/"+name, h.watchCollection(name, c))
		}

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Put("/project", h.apiSwitchProject)
			r.Post("/projects", h.apiCreateProject)

			// Stock movements and the queue
			r.Post("/movements", h.apiEnqueueMovement)
			r.Post("/queue/{id}/dismiss", h.apiDismissMutation)
			r.Post("/queue/{id}/retry", h.apiRetryMutation)

			// Sync controls
			r.Post("/sync/download", h.apiDownload)
			r.Post("/sync/drain", h.apiDrain)

			// Site operations
			r.Post("/attendance/check-in", h.apiCheckIn)
			r.Post("/attendance/check-out", h.apiCheckOut)
			r.Post("/requisitions", h.apiCreateRequisition)
			r.Put("/requisitions/{id}/status", h.apiSetRequisitionStatus)
			r.Post("/loans", h.apiLendTool)
			r.Delete("/loans/{id}", h.apiReturnTool)
			r.Post("/site-logs", h.apiAddSiteLog)
			r.Put("/employees", h.apiSaveEmployee)
			r.Put("/catalog", h.apiSaveCatalogItem)
		})
	})

	return r, func() {
		h.eventHub.Stop()
	}
}
