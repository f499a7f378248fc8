package httpserver

import (
	"log/slog"
	"net/http"

	"foodrelay/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Logger     *slog.Logger
	API        *Handlers
	Metrics    http.Handler
	UploadsDir string
	CORSOrigin string
}

// NewRouter собирает chi-роутер с общими middleware.
// API доступно и под /api (как ждёт браузерный UI), и в корне.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.CORS(deps.CORSOrigin))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadsDir))))
	}

	r.Route("/api", deps.API.Mount)
	deps.API.Mount(r)

	return r
}
