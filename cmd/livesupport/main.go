// Command livesupport is a terminal client for realtime voice and video
// support sessions with the Gemini Live API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/royans/GeminiLiveSupport/logger"
)

const (
	flagConfig  = "config"
	flagVerbose = "verbose"
)

var rootCmd = &cobra.Command{
	Use:           "livesupport",
	Short:         "Realtime voice and screen-share support sessions with Gemini Live",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `livesupport streams your microphone, and optionally your camera or screen,
to the Gemini Live API and plays the model's spoken replies.

Settings are read from a YAML file, LIVESUPPORT_* environment variables and
.env files. The API key may also come from GEMINI_API_KEY or GOOGLE_API_KEY.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed(flagVerbose) {
			verbose, err := cmd.Flags().GetBool(flagVerbose)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String(flagConfig, "", "Settings file (default ~/.config/livesupport/settings.yaml)")
	rootCmd.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
