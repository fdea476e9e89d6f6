package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ============================================================================
// Root command
// ============================================================================

var outputJSON bool

var rootCmd = &cobra.Command{
	Use:   "blogsync",
	Short: "Offline-first blog data layer CLI",
	Long: "Command-line interface for the blog client's offline data layer.\n" +
		"Save drafts and queue changes while offline, then sync them to the backend.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.blogsync/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print results as JSON")
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
