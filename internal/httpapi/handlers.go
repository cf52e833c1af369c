package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fixit/internal/core"
	"fixit/internal/geo"
	"fixit/pkg/schema"
)

const maxJSONBody = 64 << 10

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessions.Create()
	s.logger.Info("session created", "session", session.ID)
	writeJSON(w, http.StatusCreated, newSnapshotPayload(session.ID, session.Machine.Snapshot()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotPayload(session.ID, session.Machine.Snapshot()))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Delete(id) {
		WriteError(r.Context(), w, errorFor(errSessionNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": session.Machine.Journal()})
}

type deviceRequest struct {
	DeviceType string `json:"deviceType"`
}

func (s *Server) selectDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, core.SelectDevice{Device: schema.DeviceType(req.DeviceType)})
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

func (s *Server) setPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, core.SetPriority{Priority: schema.Priority(req.Priority)})
}

// fieldOrder applies a multi-field patch in form order.
var fieldOrder = []string{
	schema.FieldDeviceModel,
	schema.FieldDescription,
	schema.FieldAddress,
	schema.FieldContactInfo,
	schema.FieldPreferredDate1,
	schema.FieldPreferredDate2,
}

type fieldsRequest struct {
	Fields map[string]string `json:"fields"`
	// Blur marks the description as having lost focus after the patch.
	Blur bool `json:"blur,omitempty"`
}

func (s *Server) setFields(w http.ResponseWriter, r *http.Request) {
	var req fieldsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 && !req.Blur {
		WriteError(r.Context(), w, NewError("invalid_request", "fields are required", http.StatusBadRequest))
		return
	}
	for name := range req.Fields {
		if !isKnownField(name) {
			WriteError(r.Context(), w, NewError("validation_failed", fmt.Sprintf("unknown field %q", name), http.StatusUnprocessableEntity).WithFields(name))
			return
		}
	}

	events := make([]core.Event, 0, len(req.Fields)+1)
	for _, name := range fieldOrder {
		if value, ok := req.Fields[name]; ok {
			events = append(events, core.SetField{Field: name, Value: value})
		}
	}
	if req.Blur {
		events = append(events, core.BlurDescription{})
	}
	s.dispatch(w, r, events...)
}

func isKnownField(name string) bool {
	for _, f := range fieldOrder {
		if f == name {
			return true
		}
	}
	return false
}

type stepRequest struct {
	Step      int    `json:"step,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (s *Server) setStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var ev core.Event
	switch strings.ToLower(req.Direction) {
	case "":
		ev = core.FocusStep{Step: req.Step}
	case "forward", "next":
		ev = core.StepForward{}
	case "back", "previous":
		ev = core.StepBack{}
	default:
		WriteError(r.Context(), w, NewError("invalid_request", "direction must be forward or back", http.StatusBadRequest))
		return
	}
	s.dispatch(w, r, ev)
}

func (s *Server) attachPhotos(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}
	photos, refused, err := s.readPhotos(w, r)
	if err != nil {
		WriteError(r.Context(), w, NewError("invalid_upload", err.Error(), http.StatusBadRequest))
		return
	}
	s.dispatch(w, r, core.AttachPhotos{Photos: photos, Refused: refused})
}

func (s *Server) removePhoto(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, core.RemovePhoto{ID: chi.URLParam(r, "photoID")})
}

func (s *Server) retryUpload(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, core.RetryUpload{ID: chi.URLParam(r, "photoID")})
}

type diagnosisRequest struct {
	// Trigger is "blur" or "request" (default).
	Trigger string `json:"trigger,omitempty"`
}

func (s *Server) requestDiagnosis(w http.ResponseWriter, r *http.Request) {
	var req diagnosisRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Trigger == "blur" {
		s.dispatch(w, r, core.BlurDescription{})
		return
	}
	s.dispatch(w, r, core.RequestDiagnosis{})
}

// locateRequest carries what the client device's geolocation produced:
// coordinates, or the error code it reported.
type locateRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) locate(w http.ResponseWriter, r *http.Request) {
	var req locateRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	var locator geo.Locator
	switch {
	case req.Error != "":
		locator = geo.Failed{Code: geo.ParseErrorCode(req.Error)}
	case req.Latitude != nil && req.Longitude != nil:
		locator = geo.Fixed{Coordinates: geo.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}}
	case req.Latitude != nil || req.Longitude != nil:
		WriteError(r.Context(), w, NewError("invalid_request", "latitude and longitude go together", http.StatusBadRequest))
		return
	}
	s.dispatch(w, r, core.Locate{Locator: locator})
}

func (s *Server) simple(build func() core.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.dispatch(w, r, build())
	}
}

func (s *Server) getPreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.previews.Open(chi.URLParam(r, "handle"))
	if !ok {
		WriteError(r.Context(), w, NewError("preview_not_found", "preview not found", http.StatusNotFound))
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// dispatch applies events in order, stopping at the first rejection.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, events ...core.Event) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := session.Machine.Snapshot()
	for _, ev := range events {
		var err error
		snap, err = session.Machine.Dispatch(ev)
		if err != nil {
			apiErr := errorFor(err)
			if apiErr.Status >= http.StatusInternalServerError {
				s.logger.Error("dispatch failed", "session", session.ID, "event", ev.Kind(), "error", err.Error())
			}
			WriteError(r.Context(), w, apiErr)
			return
		}
	}
	writeJSON(w, http.StatusOK, newSnapshotPayload(session.ID, snap))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		WriteError(r.Context(), w, errorFor(errSessionNotFound))
		return nil, false
	}
	return session, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "request body must be valid JSON"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		WriteError(r.Context(), w, NewError("invalid_request", msg, http.StatusBadRequest))
		return false
	}
	return true
}
