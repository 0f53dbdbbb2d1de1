package httpapi

// router.go constructs the chi router, registers all middleware, and wires
// all routes to their respective handlers. It is the single source of truth
// for the HTTP surface area of the control plane API. Adding a new endpoint
// means adding one line here, nothing else.

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corvus-paas/controlplane/engine"
)

// Dependencies groups the router's external dependencies. Passing one
// struct instead of N arguments keeps NewRouter's signature stable as more
// handlers are added.
type Dependencies struct {
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewRouter constructs the chi multiplexer, attaches middleware, builds the
// handler set, and registers every control-plane route. It returns a plain
// http.Handler so main.go has no chi import.
func NewRouter(deps Dependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	h := &handlers{engine: deps.Engine, logger: deps.Logger}

	// /health is kept at the root rather than under /api: load balancers,
	// orchestrators, and uptime monitors expect it there.
	router.Get("/health", h.health)

	router.Route("/api", func(api chi.Router) {
		api.Route("/projects", func(r chi.Router) {
			r.Post("/", h.deploy)
			r.Post("/stream", h.deployStreaming)
			r.Post("/legacy", h.deployLegacy)
			r.Post("/{id}/redeploy", h.redeploy)
			r.Post("/{id}/stop", h.stopProject)
			r.Get("/{id}/logs/runtime", h.runtimeLogs)
			r.Get("/{id}/logs/build", h.buildLogs)
			r.Post("/{id}/prune", h.pruneProject)
		})

		api.Post("/prune", h.pruneAll)

		api.Route("/offerings/{offeringID}", func(r chi.Router) {
			r.Post("/tag", h.tagOffering)
			r.Post("/untag", h.untagOffering)
		})

		api.Post("/migrate", h.migrateContainer)
	})

	return router
}
