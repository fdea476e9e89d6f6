package main

import (
	"fmt"
	"strings"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/spf13/cobra"
)

var (
	draftTitle    string
	draftContent  string
	draftSummary  string
	draftTags     []string
	draftCategory string
	draftID       string
)

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftSaveCmd)
	draftCmd.AddCommand(draftListCmd)
	draftCmd.AddCommand(draftDeleteCmd)

	draftSaveCmd.Flags().StringVar(&draftTitle, "title", "", "Draft title")
	draftSaveCmd.Flags().StringVar(&draftContent, "content", "", "Draft body")
	draftSaveCmd.Flags().StringVar(&draftSummary, "summary", "", "Short summary")
	draftSaveCmd.Flags().StringSliceVar(&draftTags, "tags", nil, "Comma-separated tags")
	draftSaveCmd.Flags().StringVar(&draftCategory, "category", "", "Category")
	draftSaveCmd.Flags().StringVar(&draftID, "id", "", "Replace the draft with this id")
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage local drafts",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or replace a draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, err := rt.offline.SaveDraft(blogsync.BlogContent{
			Title:    draftTitle,
			Content:  draftContent,
			Summary:  draftSummary,
			Tags:     draftTags,
			Category: draftCategory,
		}, draftID)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if outputJSON {
			draft, _ := rt.offline.GetDraft(id)
			return printJSON(w, draft)
		}
		fmt.Fprintf(w, "Draft saved: %s\n", id)
		return nil
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		drafts := rt.offline.GetOfflineState().Drafts
		w := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(w, drafts)
		}
		if len(drafts) == 0 {
			fmt.Fprintln(w, "No drafts.")
			return nil
		}
		for _, d := range drafts {
			fmt.Fprintf(w, "%s  %-7s  %s  %s\n", d.ID, d.SyncStatus, formatTime(d.LastModified), valueOrDefault(d.Fields.Title, "(untitled)"))
			if len(d.Fields.Tags) > 0 {
				fmt.Fprintf(w, "    tags: %s\n", strings.Join(d.Fields.Tags, ", "))
			}
		}
		return nil
	},
}

var draftDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a local draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.offline.DeleteDraft(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Draft deleted: %s\n", args[0])
		return nil
	},
}
