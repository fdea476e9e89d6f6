package main

import (
	"encoding/json"
	"fmt"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(clearCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue <create_blog|update_blog|delete_blog|like_blog> <json-payload>",
	Short: "Queue a blog mutation for the next sync",
	Long: "Queue a blog mutation for the next sync.\n" +
		"Example: blogsync queue like_blog '{\"id\":\"65f0c1\"}'",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("payload is not valid JSON")
		}
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, err := rt.offline.QueueAction(blogsync.ActionType(args[0]), json.RawMessage(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s: %s\n", args[0], id)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending drafts and actions against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.offline.SyncPendingData(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(w, report)
		}
		if report.Skipped {
			fmt.Fprintln(w, "Backend unreachable; nothing synced.")
			return nil
		}
		if report.Aborted {
			fmt.Fprintln(w, "Sync aborted; remaining items stay queued.")
		}
		fmt.Fprintf(w, "Drafts:  %d synced, %d failed\n", report.DraftsSynced, report.DraftsFailed)
		fmt.Fprintf(w, "Actions: %d confirmed, %d retrying, %d dropped\n",
			report.ActionsConfirmed, report.ActionsRetrying, report.ActionsDropped)
		fmt.Fprintf(w, "Took %s\n", report.Duration)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued action and draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.offline.ClearOfflineData(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Offline data cleared.")
		return nil
	},
}
