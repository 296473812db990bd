package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
	"github.com/kozaktomas/face-monitor/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Monitor web server.
Each mounted view creates a session that can hold the camera while no
other session does, sends
captures or chosen files to the detection backend and follows results
over server-sent events.

Example:
  face-monitor serve --port 8080
  face-monitor serve --camera-file ./testdata/group.jpg`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("camera-file", "", "Serve this image file as the camera instead of CAMERA_URL")
}

// resolveServeHostPort applies the flags over the environment when they were set explicitly.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	client, err := newAnalysisClient(cfg)
	if err != nil {
		return err
	}
	renderer, err := overlay.NewRenderer(cfg.Overlay)
	if err != nil {
		return fmt.Errorf("invalid overlay palette: %w", err)
	}

	cameraFile := mustGetString(cmd, "camera-file")
	device := newCameraDevice(cfg, cameraFile)
	switch {
	case cameraFile != "":
		fmt.Printf("Using still image %s as camera\n", cameraFile)
	case device != nil:
		fmt.Printf("Using MJPEG camera at %s\n", cfg.Camera.URL)
	default:
		fmt.Println("Warning: CAMERA_URL is not set, only file uploads will work")
	}
	fmt.Printf("Detection backend: %s\n", client.Origin)

	// Sessions share one exclusive device so only one view holds the camera.
	var shared camera.Device
	if device != nil {
		shared = camera.NewExclusiveDevice(device)
	}
	registry := session.NewRegistry(func(id string) (session.Options, error) {
		return sessionOptions(cfg, shared, client), nil
	})

	server := web.NewServer(cfg, registry, client, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Monitor on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
