package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/detection"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	BackendOrigin    string            `json:"backend_origin"`
	CameraConfigured bool              `json:"camera_configured"`
	TimeoutSeconds   float64           `json:"timeout_seconds,omitempty"`
	Palette          map[string]string `json:"palette"`
	LineWidth        int               `json:"line_width"`
}

// Get returns what a view needs to draw markers the same way the server does.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	palette := make(map[string]string, 3)
	for _, s := range []detection.Status{detection.StatusMatch, detection.StatusLowConfidence, detection.StatusUnknown} {
		palette[s.Key()] = h.config.Overlay.StatusColor(s.Key())
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		BackendOrigin:    h.config.Backend.Origin,
		CameraConfigured: h.config.Camera.URL != "",
		TimeoutSeconds:   h.config.Backend.Timeout.Seconds(),
		Palette:          palette,
		LineWidth:        h.config.Overlay.LineWidth,
	})
}
