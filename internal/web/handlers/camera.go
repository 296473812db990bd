package handlers

import "net/http"

// StartCamera acquires the camera for the session.
func (h *SessionsHandler) StartCamera(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	if err := s.StartCamera(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// StopCamera releases the camera. Calling it without an active camera is fine.
func (h *SessionsHandler) StopCamera(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	if err := s.StopCamera(); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// Capture snapshots the live frame and starts its analysis.
func (h *SessionsHandler) Capture(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	if err := s.Capture(); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.Snapshot())
}
