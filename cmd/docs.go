package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orderchat/orderchat/internal/app"
	"github.com/orderchat/orderchat/internal/rest"
)

func newDocsCmd() *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Browse the document store",
	}

	docsCmd.AddCommand(newDocsListCmd())
	docsCmd.AddCommand(newDocsTreeCmd())
	docsCmd.AddCommand(newDocsRecentCmd())
	docsCmd.AddCommand(newDocsMkdirCmd())
	docsCmd.AddCommand(newDocsRmCmd())
	docsCmd.AddCommand(newDocsUploadCmd())
	return docsCmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Browser.Documents(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents.")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%-40s  %-8s  %s\n", d.Title, d.Size, d.URL)
			}
			return nil
		},
	}
}

func newDocsTreeCmd() *cobra.Command {
	var search, sortBy, order string
	var page, limit int

	treeCmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			q := rest.TreeQuery{Path: path, Search: search, SortBy: sortBy, Order: order, Page: page, Limit: limit}
			if err := a.Browser.List(cmd.Context(), q); err != nil {
				return err
			}

			for _, f := range a.Browser.Folders() {
				fmt.Printf("%-40s  <folder>\n", f.Name+"/")
			}
			for _, f := range a.Browser.Files() {
				fmt.Printf("%-40s  %-8s  %s\n", f.Name, f.Size, f.Date)
			}
			if len(a.Browser.Folders()) == 0 && len(a.Browser.Files()) == 0 {
				fmt.Println("Empty folder.")
			}
			return nil
		},
	}

	treeCmd.Flags().StringVar(&search, "search", "", "filter by name")
	treeCmd.Flags().StringVar(&sortBy, "sort", "name", "sort by name, size or date")
	treeCmd.Flags().StringVar(&order, "order", "asc", "asc or desc")
	treeCmd.Flags().IntVar(&page, "page", 1, "result page")
	treeCmd.Flags().IntVar(&limit, "limit", 50, "results per page")
	return treeCmd
}

func newDocsRecentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show recently touched files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Browser.RefreshRecent(cmd.Context()); err != nil {
				return err
			}
			for _, f := range a.Browser.Recent() {
				fmt.Printf("%-40s  %-8s  %s\n", f.Name, f.Size, f.Date)
			}
			return nil
		},
	}
}

func newDocsMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Browser.List(cmd.Context(), rest.TreeQuery{Path: args[0]}); err != nil {
				return err
			}
			if err := a.Browser.CreateFolder(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Printf("Created folder %s\n", args[1])
			return nil
		},
	}
}

func newDocsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Browser.DeleteItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newDocsUploadCmd() *cobra.Command {
	var dest string

	uploadCmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if dest != "" {
				if err := a.Browser.List(cmd.Context(), rest.TreeQuery{Path: dest}); err != nil {
					return err
				}
			}
			if err := a.Browser.Upload(cmd.Context(), filepath.Base(args[0]), f); err != nil {
				return err
			}
			fmt.Printf("Uploaded %s\n", filepath.Base(args[0]))
			return nil
		},
	}

	uploadCmd.Flags().StringVar(&dest, "to", "", "destination folder path")
	return uploadCmd
}
