package main

import (
	"fmt"
	"time"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	ConfigPath string                     `json:"configPath"`
	BaseURL    string                     `json:"baseUrl"`
	APIKey     string                     `json:"apiKey"`
	Storage    string                     `json:"storage"`
	Sync       blogsync.SyncStatusSummary `json:"sync"`
	Cache      blogsync.CacheStats        `json:"cache"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		path, _ := configPath()
		out := statusOutput{
			ConfigPath: path,
			BaseURL:    rt.cfg.Default.BaseURL,
			APIKey:     maskKey(rt.cfg.Default.APIKey),
			Storage:    rt.cfg.Storage.Driver + " (" + rt.cfg.Storage.Path + ")",
			Sync:       rt.offline.GetSyncStatus(),
			Cache:      rt.cache.Stats(),
		}

		w := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(w, out)
		}

		fmt.Fprintln(w, "Config")
		fmt.Fprintf(w, "  File:      %s\n", out.ConfigPath)
		fmt.Fprintf(w, "  Base URL:  %s\n", out.BaseURL)
		fmt.Fprintf(w, "  API Key:   %s\n", valueOrDefault(out.APIKey, "(not set)"))
		fmt.Fprintf(w, "  Storage:   %s\n", out.Storage)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "Sync")
		if out.Sync.IsOnline {
			fmt.Fprintln(w, "  Backend:   online")
		} else {
			fmt.Fprintln(w, "  Backend:   offline")
		}
		fmt.Fprintf(w, "  Actions:   %d pending\n", out.Sync.PendingActions)
		fmt.Fprintf(w, "  Drafts:    %d unsynced\n", out.Sync.PendingDrafts)
		fmt.Fprintf(w, "  Last sync: %s\n", formatTime(out.Sync.LastSyncTime))
		fmt.Fprintln(w)

		fmt.Fprintln(w, "Cache")
		fmt.Fprintf(w, "  Entries:   %d\n", out.Cache.Entries)
		fmt.Fprintf(w, "  Size:      %d / %d bytes\n", out.Cache.TotalSize, rt.cfg.Cache.MaxSize)
		return nil
	},
}

// maskKey keeps the first and last four characters of an API key.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 12 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
