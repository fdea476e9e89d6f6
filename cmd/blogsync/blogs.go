package main

import (
	"fmt"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/spf13/cobra"
)

var listOpts blogsync.ListOptions

func init() {
	rootCmd.AddCommand(blogsCmd)
	blogsCmd.AddCommand(blogsGetCmd)
	blogsCmd.AddCommand(blogsListCmd)

	blogsListCmd.Flags().IntVar(&listOpts.Page, "page", 0, "Page number")
	blogsListCmd.Flags().IntVar(&listOpts.Limit, "limit", 0, "Page size")
	blogsListCmd.Flags().StringVar(&listOpts.Category, "category", "", "Filter by category")
	blogsListCmd.Flags().StringVar(&listOpts.Tag, "tag", "", "Filter by tag")
	blogsListCmd.Flags().StringVar(&listOpts.Search, "search", "", "Full-text search")
}

var blogsCmd = &cobra.Command{
	Use:   "blogs",
	Short: "Read blogs, served from cache when offline",
}

func cachedBlogs(rt *runtime) *blogsync.CachedBlogs {
	return blogsync.NewCachedBlogs(rt.client, rt.cache, rt.monitor, rt.cfg.Cache.TTL.Duration, rt.log)
}

var blogsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch one blog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		blog, err := cachedBlogs(rt).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(w, blog)
		}
		fmt.Fprintf(w, "%s\n", blog.Title)
		fmt.Fprintf(w, "  id: %s  likes: %d  created: %s\n", blog.ID, blog.Likes, formatTime(blog.CreatedAt))
		if blog.Summary != "" {
			fmt.Fprintf(w, "\n%s\n", blog.Summary)
		}
		return nil
	},
}

var blogsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		page, err := cachedBlogs(rt).List(cmd.Context(), &listOpts)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(w, page)
		}
		for _, b := range page.Blogs {
			fmt.Fprintf(w, "%s  %s\n", b.ID, valueOrDefault(b.Title, "(untitled)"))
		}
		fmt.Fprintf(w, "Page %d, %d of %d\n", page.Page, len(page.Blogs), page.Total)
		return nil
	},
}
