package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/royans/GeminiLiveSupport/logger"
	"github.com/royans/GeminiLiveSupport/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change persistent settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		printSettings(cmd, store.Settings())
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting and save it",
	Long:  "Change a setting and save it. Keys: " + strings.Join(settings.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		if err := store.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Settings saved to %s\n", store.Path())
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), store.Path())
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsPathCmd)
	rootCmd.AddCommand(settingsCmd)
}

// openStore loads .env files and the settings file named by --config.
func openStore(cmd *cobra.Command) (*settings.Store, error) {
	if err := settings.LoadDotEnv(); err != nil {
		logger.Warn("Ignoring unreadable .env file", "error", err)
	}
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	return settings.Open(path)
}

func printSettings(cmd *cobra.Command, s settings.Settings) {
	out := cmd.OutOrStdout()
	apiKey := "(not set)"
	if s.APIKey != "" {
		apiKey = maskKey(s.APIKey)
	}
	fmt.Fprintf(out, "%-20s %s\n", settings.KeyAPIKey, apiKey)
	fmt.Fprintf(out, "%-20s %s\n", settings.KeyLanguage, s.Language)
	fmt.Fprintf(out, "%-20s %s\n", settings.KeyVoiceName, s.VoiceName)
	fmt.Fprintf(out, "%-20s %d\n", settings.KeySampleRate, s.SampleRate)
	fmt.Fprintf(out, "%-20s %g\n", settings.KeyTemperature, s.Temperature)
	fmt.Fprintf(out, "%-20s %g\n", settings.KeyTopP, s.TopP)
	fmt.Fprintf(out, "%-20s %d\n", settings.KeyTopK, s.TopK)
	fmt.Fprintf(out, "%-20s %d\n", settings.KeyFPS, s.FPS)
	fmt.Fprintf(out, "%-20s %d\n", settings.KeyResizeWidth, s.ResizeWidth)
	fmt.Fprintf(out, "%-20s %g\n", settings.KeyQuality, s.Quality)
	fmt.Fprintf(out, "%-20s %d chars\n", settings.KeySystemInstructions, len(s.SystemInstructions))
}

func maskKey(k string) string {
	const visible = 4
	if len(k) <= visible {
		return strings.Repeat("*", len(k))
	}
	return k[:visible] + strings.Repeat("*", len(k)-visible)
}
