package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Backend BackendConfig
	Camera  CameraConfig
	Web     WebConfig
	Overlay OverlayConfig
}

type BackendConfig struct {
	Origin     string        // detection backend origin, e.g. http://127.0.0.1:8000
	Timeout    time.Duration // deadline for a single analysis request, 0 disables it
	CaptureDir string        // directory to save raw analysis responses (optional)
}

type CameraConfig struct {
	URL            string // MJPEG stream URL of the IP camera
	ConnectTimeout time.Duration
	FallbackWidth  int // raster size used when the stream does not report dimensions
	FallbackHeight int
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins, localhost is always allowed
}

type OverlayConfig struct {
	LineWidth   int               `yaml:"line_width"`
	LabelOffset int               `yaml:"label_offset"`
	Colors      map[string]string `yaml:"colors"` // status key -> hex color
}

// defaults mirrors defaults.yaml. Durations are kept as strings so the file
// stays readable ("30s").
type defaults struct {
	Backend struct {
		Origin  string `yaml:"origin"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`
	Camera struct {
		ConnectTimeout string `yaml:"connect_timeout"`
		FallbackWidth  int    `yaml:"fallback_width"`
		FallbackHeight int    `yaml:"fallback_height"`
	} `yaml:"camera"`
	Overlay OverlayConfig `yaml:"overlay"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("15s", "2m").
// A bare integer is taken as seconds. Negative values and garbage fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := parseDefaults()

	backendTimeout, _ := time.ParseDuration(d.Backend.Timeout)
	connectTimeout, _ := time.ParseDuration(d.Camera.ConnectTimeout)

	return &Config{
		Backend: BackendConfig{
			Origin:     envString("BACKEND_ORIGIN", d.Backend.Origin),
			Timeout:    envDuration("BACKEND_TIMEOUT", backendTimeout),
			CaptureDir: os.Getenv("BACKEND_CAPTURE_DIR"),
		},
		Camera: CameraConfig{
			URL:            os.Getenv("CAMERA_URL"),
			ConnectTimeout: envDuration("CAMERA_CONNECT_TIMEOUT", connectTimeout),
			FallbackWidth:  envInt("CAMERA_FALLBACK_WIDTH", d.Camera.FallbackWidth),
			FallbackHeight: envInt("CAMERA_FALLBACK_HEIGHT", d.Camera.FallbackHeight),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Overlay: d.Overlay,
	}
}

// StatusColor returns the configured hex color for a status key, or the
// "unknown" color when the key has no entry.
func (c *OverlayConfig) StatusColor(key string) string {
	if hex, ok := c.Colors[key]; ok {
		return hex
	}
	return c.Colors["unknown"]
}
