package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-monitor/internal/analysis"
	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
)

// newAnalysisClient connects to the configured detection backend.
func newAnalysisClient(cfg *config.Config) (*analysis.Client, error) {
	client, err := analysis.NewClient(cfg.Backend.Origin, cfg.Backend.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid BACKEND_ORIGIN: %w", err)
	}

	dir := captureDir
	if dir == "" {
		dir = cfg.Backend.CaptureDir
	}
	if dir != "" {
		if err := client.SetCaptureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to set capture directory: %w", err)
		}
	}
	return client, nil
}

// newCameraDevice picks the camera source: a still image file when given,
// otherwise the MJPEG stream from CAMERA_URL. It returns nil when neither is set.
func newCameraDevice(cfg *config.Config, file string) camera.Device {
	switch {
	case file != "":
		return camera.NewStillDevice(file)
	case cfg.Camera.URL != "":
		return camera.NewMJPEGDevice(cfg.Camera.URL, cfg.Camera.ConnectTimeout)
	default:
		return nil
	}
}

// sessionOptions wires a controller to the device, capturer and analyzer.
func sessionOptions(cfg *config.Config, device camera.Device, analyzer session.Analyzer) session.Options {
	opts := session.Options{
		Capturer: capture.New(cfg.Camera.FallbackWidth, cfg.Camera.FallbackHeight),
		Analyzer: analyzer,
	}
	if device != nil {
		opts.Camera = camera.NewManager(device)
	}
	return opts
}

// writeOverlay downloads the result image, draws the markers over it and saves a PNG.
// A width of 0 keeps the natural size; otherwise the height follows the aspect ratio.
func writeOverlay(ctx context.Context, client *analysis.Client, renderer *overlay.Renderer, result *detection.Result, width int, path string) error {
	if result == nil || result.ImageURL == "" {
		return errors.New("no result image to draw on")
	}

	img, err := client.FetchImage(ctx, result.ImageURL)
	if err != nil {
		return fmt.Errorf("fetching result image: %w", err)
	}

	var g overlay.Geometry
	b := img.Bounds()
	g.RegisterNatural(b.Dx(), b.Dy())
	if width > 0 {
		g.UpdateDisplay(width, max(1, width*b.Dy()/max(1, b.Dx())))
	} else {
		g.UpdateDisplay(b.Dx(), b.Dy())
	}

	data, err := renderer.Render(img, overlay.Markers(result, g), g.DisplayWidth, g.DisplayHeight)
	if err != nil {
		return fmt.Errorf("rendering overlay: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing overlay: %w", err)
	}
	return nil
}

// overlayPath returns <dir>/<name without extension>.overlay.png.
func overlayPath(dir, name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return filepath.Join(dir, base+".overlay.png")
}

// printSnapshot prints the outcome of one analysis.
func printSnapshot(name string, snap session.Snapshot) {
	fmt.Printf("\n%s\n", name)
	if snap.Error != "" {
		fmt.Printf("  Error (%s): %s\n", snap.ErrorKind, snap.Error)
		return
	}
	if snap.Result == nil {
		fmt.Printf("  No result\n")
		return
	}
	if len(snap.Result.Detections) == 0 {
		fmt.Printf("  No faces detected\n")
	}
	for i, d := range snap.Result.Detections {
		fmt.Printf("  %d. %s\n", i+1, d.Label())
		if d.NationalID != "" {
			fmt.Printf("     National ID: %s\n", d.NationalID)
		}
		fmt.Printf("     Box: top=%d right=%d bottom=%d left=%d\n", d.Box.Top, d.Box.Right, d.Box.Bottom, d.Box.Left)
	}
	fmt.Printf("  Result image: %s\n", snap.Result.ImageURL)
}
