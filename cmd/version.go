package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("face-monitor %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  Commit:  %s\n", CommitSHA)
		fmt.Printf("  Built:   %s\n", BuildDate)
		if mustGetBool(cmd, "backend") {
			cfg := config.Load()
			fmt.Printf("  Backend: %s (timeout %s)\n", cfg.Backend.Origin, cfg.Backend.Timeout)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("backend", false, "Also print the configured detection backend")
}
