package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/recap/devmon/internal/app"
	"github.com/recap/devmon/internal/monitor"
	"github.com/recap/devmon/internal/report"
	"github.com/recap/devmon/internal/types"
)

type checkOutput struct {
	OK bool `json:"ok"`
	*types.Summary
	OfflineDevices []string `json:"offline_devices"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var device string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one evaluation pass and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger(cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Runner.RunPass(cmd.Context(), monitor.PassOptions{DeviceKey: device})
			if err != nil {
				return err
			}

			if jsonOut || !isTerminal(cmd.OutOrStdout()) {
				return writeJSON(cmd, checkOutput{
					OK:             true,
					Summary:        summary,
					OfflineDevices: report.OfflineDevices(*summary),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Render(*summary))
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Evaluate only this device key")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON even on a terminal")
	return cmd
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
