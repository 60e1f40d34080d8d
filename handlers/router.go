package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/realtime"
)

type RouterDeps struct {
	Photos         *PhotoHandler
	Store          media.Store
	Hub            *realtime.Hub
	AllowedOrigins []string
	Log            *logger.Logger
}

// NewRouter wires the HTTP API
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Route("/photos", func(r chi.Router) {
				r.Post("/", deps.Photos.Upload)
				r.Get("/", deps.Photos.List)
				r.Get("/{id}", deps.Photos.Get)
			})
			r.Get("/media/*", AssetServer(deps.Store, deps.Log))
		})

		// long lived, no timeout
		if deps.Hub != nil {
			r.Get("/events", deps.Hub.ServeWS)
		}
	})

	return r
}

// requestLogger logs one line per request through the structured logger
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
