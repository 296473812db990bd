package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-monitor/internal/constants"
)

// SizeRequest is a width/height pair in pixels.
type SizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func decodeSize(w http.ResponseWriter, r *http.Request) (SizeRequest, bool) {
	var req SizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return req, false
	}
	if req.Width < 0 || req.Height < 0 ||
		req.Width > constants.MaxDisplayDimension || req.Height > constants.MaxDisplayDimension {
		respondError(w, http.StatusBadRequest, "width and height must be between 0 and 16384")
		return req, false
	}
	return req, true
}

// Display reports a new rendered size of the result image (resize notification).
func (h *SessionsHandler) Display(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	req, ok := decodeSize(w, r)
	if !ok {
		return
	}
	s.Feed.Notify(req.Width, req.Height)
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// Natural reports the decoded size of the result image once it has loaded.
func (h *SessionsHandler) Natural(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	req, ok := decodeSize(w, r)
	if !ok {
		return
	}
	if err := s.ImageLoaded(req.Width, req.Height); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}
