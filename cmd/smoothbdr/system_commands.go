package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

func newSystemCommand(ctx *commandContext) *cobra.Command {
	systemCmd := &cobra.Command{
		Use:   "system",
		Short: "Pause or resume every worker",
	}
	systemCmd.AddCommand(newSystemToggleCommand(ctx, "start", "Resume every worker loop", true))
	systemCmd.AddCommand(newSystemToggleCommand(ctx, "stop", "Pause every worker loop after its current batch", false))
	return systemCmd
}

func newSystemToggleCommand(ctx *commandContext, use, short string, running bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if err := store.SetSystemRunning(cmd.Context(), running); err != nil {
					return err
				}
				if running {
					fmt.Fprintln(cmd.OutOrStdout(), "System running")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "System paused")
				}
				return nil
			})
		},
	}
}
