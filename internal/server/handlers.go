package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/capture"
	"github.com/runnerr0/synapse/internal/storage"
)

const defaultMaxUploadBytes = 32 << 20

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	ack, err := s.svc.CaptureURL(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	status := http.StatusAccepted
	if ack.Duplicate {
		status = http.StatusOK
	}
	s.respondWithJSON(w, status, ack)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondWithError(w, http.StatusRequestEntityTooLarge, "Upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
			return
		}
		s.respondWithError(w, http.StatusBadRequest, "Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Could not read upload")
		return
	}

	ack, err := s.svc.CaptureUpload(r.Context(), header.Filename, data)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	item, err := s.svc.CaptureNote(r.Context(), req.Title, req.Content)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListItems(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SearchItems(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if res.NoQuery {
		s.respondWithJSON(w, http.StatusOK, messageResponse{Message: res.Message})
		return
	}
	s.respondWithJSON(w, http.StatusOK, res.Items)
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.svc.FetchUpload(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", up.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(up.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(up.Data)
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.svc.CaptureStatus(chi.URLParam(r, "id"))
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Capture not found")
		return
	}
	s.respondWithJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.Health(ctx); err != nil {
		s.logger.Error("health check failed for store", zap.Error(err))
		s.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"store": "unhealthy"})
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"store": "healthy"})
}

// respondWithServiceError maps application errors to status codes.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidURL):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrEmptyUpload), errors.Is(err, app.ErrEmptyNote):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, capture.ErrQueueFull), errors.Is(err, capture.ErrStopped):
		s.respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
