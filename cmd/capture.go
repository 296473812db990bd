package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one camera frame and identify faces in it",
	Long: `Open the camera, grab a frame, release the camera and send the frame
to the detection backend.

The camera is the MJPEG stream at CAMERA_URL unless --camera-file is given.

Example:
  face-monitor capture
  face-monitor capture --warmup 2s --overlay ./capture.overlay.png`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().String("camera-file", "", "Use this image file as the camera instead of CAMERA_URL")
	captureCmd.Flags().Duration("warmup", 500*time.Millisecond, "How long to wait for the first frame")
	captureCmd.Flags().String("overlay", "", "File to write the result image with boxes drawn over it")
	captureCmd.Flags().Int("width", 0, "Width of the written overlay (0 keeps the result image size)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cameraFile := mustGetString(cmd, "camera-file")
	warmup := mustGetDuration(cmd, "warmup")
	overlayFile := mustGetString(cmd, "overlay")
	width := mustGetInt(cmd, "width")

	cfg := config.Load()

	device := newCameraDevice(cfg, cameraFile)
	if device == nil {
		return errors.New("CAMERA_URL environment variable or --camera-file is required")
	}

	client, err := newAnalysisClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := session.New("cli", sessionOptions(cfg, device, client))
	defer c.Dispose()
	defer context.AfterFunc(ctx, c.Dispose)()

	fmt.Println("Starting camera...")
	if err := c.StartCamera(ctx); err != nil {
		return fmt.Errorf("starting camera: %w", err)
	}

	if err := captureWithWarmup(ctx, c, warmup); err != nil {
		return err
	}
	fmt.Println("Frame captured, camera released. Analyzing...")
	c.Wait()

	snap := c.Snapshot()
	printSnapshot("capture", snap)
	if snap.State != session.StateSuccess {
		return fmt.Errorf("analysis failed: %s", snap.Error)
	}

	if overlayFile != "" {
		renderer, err := overlay.NewRenderer(cfg.Overlay)
		if err != nil {
			return fmt.Errorf("invalid overlay palette: %w", err)
		}
		if err := writeOverlay(ctx, client, renderer, snap.Result, width, overlayFile); err != nil {
			return err
		}
		fmt.Printf("Overlay written to %s\n", overlayFile)
	}
	return nil
}

// captureWithWarmup waits until the stream has produced a frame or the warmup
// elapses, then captures. Capture releases the camera and records
// capture_unavailable when no frame is there yet, so it runs only once.
func captureWithWarmup(ctx context.Context, c *session.Controller, warmup time.Duration) error {
	deadline := time.Now().Add(warmup)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.FrameReady() || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := c.Capture(); err != nil {
		return fmt.Errorf("capturing frame: %w", err)
	}
	return nil
}
