// Package httpapi exposes intake sessions over HTTP.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"fixit/internal/core"
	"fixit/internal/preview"
)

const (
	// BasePath is where every intake route is mounted.
	BasePath = "/api/v1/intake"

	// PreviewPrefix is the location prefix handed to preview sets.
	PreviewPrefix = BasePath + "/previews/"

	defaultTimeout = 60 * time.Second
)

// Server serves the intake API.
type Server struct {
	sessions *Registry
	previews *preview.Store
	logger   core.Logger
	tracer   trace.Tracer

	// maxPhotoBytes bounds a single uploaded part.
	maxPhotoBytes int64
}

// NewServer creates a server over the registry and the preview store its machines share.
func NewServer(sessions *Registry, previews *preview.Store, logger core.Logger) *Server {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Server{
		sessions:      sessions,
		previews:      previews,
		logger:        logger,
		tracer:        otel.Tracer("fixit/internal/httpapi"),
		maxPhotoBytes: 25 << 20,
	}
}

// Router builds the chi router with shared middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.traceRequests,
		s.logRequests,
		s.recoverPanics,
		middleware.Timeout(defaultTimeout),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(req.Context(), w, NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(req.Context(), w, NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", s.healthz)

	r.Route(BasePath, func(api chi.Router) {
		api.Get("/previews/{handle}", s.getPreview)

		api.Post("/sessions", s.createSession)
		api.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.Get("/", s.getSession)
			sr.Delete("/", s.deleteSession)
			sr.Get("/journal", s.getJournal)

			sr.Put("/device", s.selectDevice)
			sr.Patch("/fields", s.setFields)
			sr.Put("/priority", s.setPriority)
			sr.Put("/step", s.setStep)

			sr.Post("/photos", s.attachPhotos)
			sr.Delete("/photos/{photoID}", s.removePhoto)
			sr.Post("/photos/{photoID}/retry", s.retryUpload)

			sr.Post("/diagnosis", s.requestDiagnosis)
			sr.Post("/locate", s.locate)

			sr.Post("/submit", s.simple(func() core.Event { return core.SubmitRequested{} }))
			sr.Post("/submit/confirm", s.simple(func() core.Event { return core.ConfirmSubmit{} }))
			sr.Post("/submit/cancel", s.simple(func() core.Event { return core.CancelSubmit{} }))
			sr.Post("/reset", s.simple(func() core.Event { return core.RequestReset{} }))
			sr.Post("/reset/confirm", s.simple(func() core.Event { return core.ConfirmReset{} }))
			sr.Post("/reset/cancel", s.simple(func() core.Event { return core.CancelReset{} }))
			sr.Post("/home", s.simple(func() core.Event { return core.GoHome{} }))
		})
	})

	return r
}
