package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faceattend",
	Short: "Face-recognition attendance service",
	Long: `faceattend receives photos from a capture device, recognizes the people in
them against a gallery of enrolled face samples and records one attendance
entry per employee per day.

Configuration is read from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional
	_ = godotenv.Load()
}
