package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orderchat/orderchat/internal/app"
)

func newLogsCmd() *cobra.Command {
	var since time.Duration
	var start, end string

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the admin activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			var from, to time.Time
			if start != "" {
				if from, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			} else if since > 0 {
				from = time.Now().Add(-since)
			}
			if end != "" {
				if to, err = time.Parse(time.RFC3339, end); err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
			}

			if err := a.Logs.Fetch(cmd.Context(), from, to); err != nil {
				return err
			}
			entries := a.Logs.Entries()
			if len(entries) == 0 {
				fmt.Println("No log entries in this window.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-15s  %-10s  %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.UserName, e.Action, e.Message)
			}
			return nil
		},
	}

	logsCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look back this far (ignored when --start is set)")
	logsCmd.Flags().StringVar(&start, "start", "", "window start, RFC 3339")
	logsCmd.Flags().StringVar(&end, "end", "", "window end, RFC 3339")
	return logsCmd
}
