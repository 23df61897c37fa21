package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/medigrid/backend/internal/api/handlers"
	"github.com/medigrid/backend/internal/api/middleware"
	"github.com/medigrid/backend/internal/infrastructure/observability"
)

// indexFiles are tried in order when serving the frontend root.
var indexFiles = []string{"test1.html", "index.html"}

// apiPrefixes are the paths whose responses must never be cached.
var apiPrefixes = []string{
	"/api/",
	"/health",
	"/data_extraction",
	"/critical_warnings",
	"/post_into_db",
	"/get_Saved_data",
	"/chat",
}

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	prescriptionHandler *handlers.PrescriptionHandler
	aiHandler           *handlers.AIHandler
	sseHandler          *handlers.SSEHandler

	staticDir      string
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	prescriptionHandler *handlers.PrescriptionHandler,
	aiHandler *handlers.AIHandler,
	sseHandler *handlers.SSEHandler,
	staticDir string,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		prescriptionHandler: prescriptionHandler,
		aiHandler:           aiHandler,
		sseHandler:          sseHandler,
		staticDir:           staticDir,
		allowedOrigins:      allowedOrigins,
		metrics:             metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Prescription endpoints
	r.mux.HandleFunc("POST /post_into_db", r.prescriptionHandler.PostIntoDB)
	r.mux.HandleFunc("GET /get_Saved_data", r.prescriptionHandler.GetSavedData)
	r.mux.HandleFunc("POST /api/prescriptions", r.prescriptionHandler.CreatePrescription)
	r.mux.HandleFunc("GET /api/prescriptions/history", r.prescriptionHandler.GetHistory)

	// SSE endpoint (live history updates)
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/prescriptions/stream", r.sseHandler.StreamPrescriptionSaves)
	}

	// AI endpoints
	r.mux.HandleFunc("POST /data_extraction", r.aiHandler.DataExtraction)
	r.mux.HandleFunc("POST /critical_warnings", r.aiHandler.CriticalWarnings)
	r.mux.HandleFunc("POST /chat", r.aiHandler.Chat)

	// Static frontend
	if r.staticDir != "" {
		r.mux.HandleFunc("GET /{$}", r.serveIndex)
		r.mux.Handle("GET /", http.FileServer(http.Dir(r.staticDir)))
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.Compression(handler)
	handler = middleware.CacheControl(apiPrefixes)(handler)

	// CORS wraps everything so preflight requests short-circuit early
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

func (r *Router) serveIndex(w http.ResponseWriter, req *http.Request) {
	for _, name := range indexFiles {
		path := filepath.Join(r.staticDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			http.ServeFile(w, req, path)
			return
		}
	}
	http.NotFound(w, req)
}
