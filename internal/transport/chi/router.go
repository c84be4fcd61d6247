package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/metrics"
)

// NewRouter mounts the API on a chi router with recovery, request ids,
// request logging and HTTP metrics.
func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.Upload)
		r.Post("/ingest", s.Ingest)
		r.Get("/knowledge-list", s.ListKnowledge)
		r.Delete("/knowledge/{namespace}", s.DeleteKnowledge)
		r.Post("/chat", s.Chat)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "Method not allowed")
	})
	return r
}

func chiRouteContext(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
