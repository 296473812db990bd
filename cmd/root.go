package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var captureDir string

var rootCmd = &cobra.Command{
	Use:   "face-monitor",
	Short: "Live face identification against a remote detection backend",
	Long: `Face Monitor captures frames from an IP camera (or takes image files),
sends them to a face detection backend and shows who was recognized,
with boxes drawn over the backend's result image.

Run "face-monitor serve" for the web API or use "detect" and "capture"
from the command line.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save backend responses for testing")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
