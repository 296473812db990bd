package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-monitor/internal/analysis"
	"github.com/kozaktomas/face-monitor/internal/overlay"
)

// Overlay renders the result image with its markers drawn at the display size
// currently registered for the session. ?width= and ?height= override it.
func (h *SessionsHandler) Overlay(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	if h.images == nil || h.renderer == nil {
		respondError(w, http.StatusServiceUnavailable, "overlay rendering is not configured")
		return
	}

	result := s.Result()
	if result == nil || result.ImageURL == "" {
		respondError(w, http.StatusNotFound, "no detection result")
		return
	}

	img, err := h.images.FetchImage(r.Context(), result.ImageURL)
	if err != nil {
		log.Printf("Session %s: failed to fetch result image %s: %v", s.ID(), sanitizeForLog(result.ImageURL), err)
		status := http.StatusBadGateway
		if errors.Is(err, analysis.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		respondError(w, status, "failed to fetch result image")
		return
	}

	// Boxes are drawn onto the fetched image itself, so its size is the natural size.
	g := s.Geometry()
	bounds := img.Bounds()
	g.RegisterNatural(bounds.Dx(), bounds.Dy())
	if v := queryInt(r, "width"); v > 0 {
		g.DisplayWidth = v
	}
	if v := queryInt(r, "height"); v > 0 {
		g.DisplayHeight = v
	}
	if g.DisplayWidth <= 0 || g.DisplayHeight <= 0 {
		g.UpdateDisplay(g.NaturalWidth, g.NaturalHeight)
	}

	png, err := h.renderer.Render(img, overlay.Markers(result, g), g.DisplayWidth, g.DisplayHeight)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render overlay")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
