package handlers

import (
	"context"
	"image"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
)

// ImageFetcher downloads result images from the detection backend.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// SessionsHandler serves the live detection sessions, one per mounted view.
type SessionsHandler struct {
	config   *config.Config
	registry *session.Registry
	images   ImageFetcher
	renderer *overlay.Renderer
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(cfg *config.Config, registry *session.Registry, images ImageFetcher, renderer *overlay.Renderer) *SessionsHandler {
	return &SessionsHandler{
		config:   cfg,
		registry: registry,
		images:   images,
		renderer: renderer,
	}
}

// lookup resolves the {id} URL parameter, writing a 404 when the session does not exist.
func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) *session.Session {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return nil
	}
	s := h.registry.Get(id)
	if s == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return s
}

// Create registers a new session for a mounted view.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Create()
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(w, http.StatusCreated, s.Snapshot())
}

// List returns snapshots of all live sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	snapshots := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	respondJSON(w, http.StatusOK, snapshots)
}

// Get returns the session snapshot.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// Delete disposes the session when its view unmounts.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.registry.Delete(id) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
