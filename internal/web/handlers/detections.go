package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/kozaktomas/face-monitor/internal/overlay"
)

// DetectionDetail is one detection together with its on-screen marker.
type DetectionDetail struct {
	Index     int                 `json:"index"`
	Label     string              `json:"label"`
	Detection detection.Detection `json:"detection"`
	Marker    *overlay.Marker     `json:"marker,omitempty"`
}

// Detections lists the current result's detections. ?q= filters by name or
// national ID, ?index= returns a single detection with its marker.
func (h *SessionsHandler) Detections(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	result := s.Result()
	if result == nil {
		respondError(w, http.StatusNotFound, "no detection result")
		return
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(result.Detections) {
			respondError(w, http.StatusNotFound, "detection not found")
			return
		}
		d := result.Detections[idx]
		detail := DetectionDetail{Index: idx, Label: d.Label(), Detection: d}
		for _, m := range s.Markers() {
			if m.Index == idx {
				detail.Marker = &m
				break
			}
		}
		respondJSON(w, http.StatusOK, detail)
		return
	}

	query := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, map[string]any{
		"query":            query,
		"result_image_url": result.ImageURL,
		"match_count":      result.MatchCount(),
		"detections":       result.Find(query),
	})
}
