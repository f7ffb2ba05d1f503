package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recap/devmon/internal/notifier"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var to []string

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification on every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger(cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			n, err := notifier.NewNotifier(cfg.Alerts, logger)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.SendTest(cmd.Context(), to...); err != nil {
				return fmt.Errorf("test notification failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "Send to these addresses instead of each channel's configured recipients")
	return cmd
}
