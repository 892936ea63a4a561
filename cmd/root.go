// Package cmd wires the CLI. The root command opens the chat screen;
// subcommands cover chat management, the document browser and the
// admin surfaces.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/orderchat/orderchat/internal/app"
	"github.com/orderchat/orderchat/internal/tui"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orderchat",
		Short: "Chat with the order assistant",
		Long: `orderchat is a terminal client for the order assistant: ask
questions about orders, stream the answers as they are generated, and
browse the documents the assistant works from.

Running orderchat with no arguments opens the chat screen.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()
			return tui.Run(cmd.Context(), a)
		},
	}

	rootCmd.AddCommand(newChatsCmd())
	rootCmd.AddCommand(newDocsCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
