package httpapi

import (
	"net/http"

	"casebattle/infrastructure"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes builds the HTTP router around the battle handlers
func SetupRoutes(h *Handlers, metrics *infrastructure.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if metrics != nil {
		r.Use(metrics.HTTPMiddleware)
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.RegisterUser)
		r.Get("/{userID}", h.GetUser)
	})

	r.Route("/battles", func(r chi.Router) {
		r.Post("/", h.CreateBattle)
		r.Route("/{battleID}", func(r chi.Router) {
			r.Get("/", h.GetBattle)
			r.Post("/join", h.JoinBattle)
			r.Post("/bots", h.AddBot)
			r.Post("/reveals/{round}/complete", h.ReportRevealComplete)
		})
	})

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", infrastructure.MetricsHandler())

	return r
}

// Healthz reports liveness
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
