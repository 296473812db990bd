package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <path> [path...]",
	Short: "Identify faces in image files",
	Long: `Send image files to the detection backend and print who was recognized.

Paths may be files or folders. Folders are scanned for images
(jpg, jpeg, png, gif, bmp, webp), use -r to include subdirectories.

Example:
  face-monitor detect group.jpg
  face-monitor detect -r ./entrance --overlay ./out --width 800
  face-monitor detect --name "Jiří" ./entrance`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().BoolP("recursive", "r", false, "Search folders recursively")
	detectCmd.Flags().Int("concurrency", 4, "Number of parallel requests to the backend")
	detectCmd.Flags().String("overlay", "", "Directory to write result images with boxes drawn over them")
	detectCmd.Flags().Int("width", 0, "Width of written overlays (0 keeps the result image size)")
	detectCmd.Flags().String("name", "", "Only print detections whose name or national ID contains this text")
}

// isImageFile checks if a file has an extension the capture package can decode
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// collectImages expands folders into the image files they contain.
func collectImages(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		if recursive {
			err := filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", p, err)
			}
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", p, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				files = append(files, filepath.Join(p, entry.Name()))
			}
		}
	}
	return files, nil
}

// detectOutcome is the final snapshot of one file's session.
type detectOutcome struct {
	path string
	snap session.Snapshot
	err  error
}

func runDetect(cmd *cobra.Command, args []string) error {
	recursive := mustGetBool(cmd, "recursive")
	concurrency := max(1, mustGetInt(cmd, "concurrency"))
	overlayDir := mustGetString(cmd, "overlay")
	width := mustGetInt(cmd, "width")
	nameFilter := mustGetString(cmd, "name")

	cfg := config.Load()

	files, err := collectImages(args, recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No image files found.")
		return nil
	}

	client, err := newAnalysisClient(cfg)
	if err != nil {
		return err
	}

	var renderer *overlay.Renderer
	if overlayDir != "" {
		renderer, err = overlay.NewRenderer(cfg.Overlay)
		if err != nil {
			return fmt.Errorf("invalid overlay palette: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Analyzing %d image(s) with %s\n", len(files), client.Origin)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Detecting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	outcomes := make([]detectOutcome, len(files))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, path := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			outcomes[i] = detectFile(ctx, cfg, client, path)
			if renderer != nil && outcomes[i].err == nil && outcomes[i].snap.Result != nil {
				out := overlayPath(overlayDir, path)
				if err := writeOverlay(ctx, client, renderer, outcomes[i].snap.Result, width, out); err != nil {
					outcomes[i].err = err
				}
			}
		}()
	}
	wg.Wait()
	fmt.Println()

	var failed, matched int
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Printf("\n%s\n  Error: %v\n", o.path, o.err)
			continue
		}
		if o.snap.State != session.StateSuccess {
			failed++
		}
		if nameFilter != "" && o.snap.Result != nil {
			o.snap.Result.Detections = o.snap.Result.Find(nameFilter)
		}
		if o.snap.Result != nil {
			matched += o.snap.Result.MatchCount()
		}
		printSnapshot(o.path, o.snap)
	}

	fmt.Printf("\nDone: %d image(s), %d matched face(s), %d failed\n", len(files), matched, failed)
	if overlayDir != "" {
		fmt.Printf("Overlays written to %s\n", overlayDir)
	}
	if failed == len(files) {
		return fmt.Errorf("all %d image(s) failed", failed)
	}
	return nil
}

// detectFile runs one file through a session the same way the web view does
// after a file is chosen.
func detectFile(ctx context.Context, cfg *config.Config, analyzer session.Analyzer, path string) detectOutcome {
	img, err := capture.FromFile(path)
	if err != nil {
		return detectOutcome{path: path, err: err}
	}

	c := session.New(filepath.Base(path), sessionOptions(cfg, nil, analyzer))
	defer c.Dispose()

	stop := context.AfterFunc(ctx, c.Dispose)
	defer stop()

	if err := c.ChooseFile(img); err != nil {
		return detectOutcome{path: path, err: err}
	}
	c.Wait()

	if ctx.Err() != nil {
		return detectOutcome{path: path, err: ctx.Err()}
	}
	return detectOutcome{path: path, snap: c.Snapshot()}
}
