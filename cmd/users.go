package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orderchat/orderchat/internal/app"
)

func newUsersCmd() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Administer user accounts",
	}

	usersCmd.AddCommand(newUsersListCmd())
	usersCmd.AddCommand(newUsersRoleCmd())
	usersCmd.AddCommand(newUsersToggleCmd())
	return usersCmd
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Directory.Refresh(cmd.Context()); err != nil {
				return err
			}
			for _, u := range a.Directory.Users() {
				fmt.Printf("%-20s  %-25s  %-30s  %-8s  %s\n", u.ID, u.Name, u.Email, u.Role, u.Status)
			}
			return nil
		},
	}
}

func newUsersRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Directory.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.Directory.SetRole(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("User %s is now %s\n", args[0], args[1])
			return nil
		},
	}
}

func newUsersToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <user-id>",
		Short: "Enable or disable an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Directory.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.Directory.ToggleStatus(cmd.Context(), args[0]); err != nil {
				return err
			}
			for _, u := range a.Directory.Users() {
				if u.ID == args[0] {
					fmt.Printf("User %s is now %s\n", u.ID, u.Status)
					break
				}
			}
			return nil
		},
	}
}
