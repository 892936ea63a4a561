package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orderchat/orderchat/internal/app"
	"github.com/orderchat/orderchat/internal/conversation"
)

func newChatsCmd() *cobra.Command {
	chatsCmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage chats",
	}

	chatsCmd.AddCommand(newChatsListCmd())
	chatsCmd.AddCommand(newChatsNewCmd())
	chatsCmd.AddCommand(newChatsRenameCmd())
	chatsCmd.AddCommand(newChatsRmCmd())
	return chatsCmd
}

// withStore loads the app, syncs the chat list and runs fn against the
// store.
func withStore(ctx context.Context, fn func(ctx context.Context, store *conversation.Store) error) error {
	a, err := app.Load()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.ReconcileWithServer(ctx); err != nil {
		return fmt.Errorf("fetching chats: %w", err)
	}
	return fn(ctx, a.Store)
}

func newChatsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *conversation.Store) error {
				chats := store.Chats()
				if len(chats) == 0 {
					fmt.Println("No chats yet. Run 'orderchat' to start one.")
					return nil
				}
				current, _ := conversation.LoadCurrentChatID()
				for _, c := range chats {
					marker := "  "
					if c.ID == current {
						marker = "* "
					}
					fmt.Printf("%s%-20s  %-30s  %d message(s)  %s\n",
						marker, c.ID, c.Name, len(c.Messages), c.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func newChatsNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [name]",
		Short: "Create a chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *conversation.Store) error {
				chat, err := store.CreateChat(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 && args[0] != chat.Name {
					if err := store.RenameChat(ctx, chat.ID, args[0]); err != nil {
						return err
					}
					chat.Name = args[0]
				}
				if err := conversation.SaveCurrentChatID(chat.ID); err != nil {
					return err
				}
				fmt.Printf("Created chat %s (%s)\n", chat.Name, chat.ID)
				return nil
			})
		},
	}
}

func newChatsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat-id> <name>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *conversation.Store) error {
				if err := store.RenameChat(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Renamed chat %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newChatsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <chat-id>",
		Short: "Delete a chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *conversation.Store) error {
				if err := store.DeleteChat(ctx, args[0]); err != nil {
					return err
				}
				if current, _ := conversation.LoadCurrentChatID(); current == args[0] {
					if err := conversation.ClearCurrentChatID(); err != nil {
						return err
					}
				}
				fmt.Printf("Deleted chat %s\n", args[0])
				return nil
			})
		},
	}
}
