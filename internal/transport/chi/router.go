package chi

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/metrics"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	APIKeys     []string
	CORSOrigins []string
	// StaticDir, when set, is served at / for the browser UI.
	StaticDir string
}

// NewRouter mounts the API, metrics and optional static UI on a chi router.
func NewRouter(s *Server, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(logger))
	r.Use(CORSMiddleware(opts.CORSOrigins))
	r.Use(metrics.Middleware())

	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIKeys))
		r.Post("/chat", s.Chat)
		r.Get("/search", s.Search)
		r.Get("/health", s.Health)
		r.NotFound(s.NotFound)
	})

	if opts.StaticDir != "" {
		if _, err := os.Stat(opts.StaticDir); err != nil {
			logger.Warn("Static directory not available, UI disabled",
				zap.String("dir", opts.StaticDir), zap.Error(err))
		} else {
			r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
		}
	}

	return r
}
