package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
)

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	workersCmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect and toggle stage workers",
	}
	workersCmd.AddCommand(newWorkersListCommand(ctx))
	workersCmd.AddCommand(newWorkerToggleCommand(ctx, true))
	workersCmd.AddCommand(newWorkerToggleCommand(ctx, false))
	return workersCmd
}

func newWorkersListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers with their heartbeat health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				snap := supervisor.Collect(cmd.Context(), store, supervisor.ThresholdsFromConfig(cfg))
				if snap.Health == supervisor.SystemUnknown {
					return fmt.Errorf("read workers: %s", snap.Error)
				}
				if asJSON {
					return writeJSON(cmd, snap.Workers)
				}
				fmt.Fprint(cmd.OutOrStdout(), workersTable(snap))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWorkerToggleCommand(ctx *commandContext, enabled bool) *cobra.Command {
	use, short := "disable <stage>", "Stop a worker from acquiring items"
	if enabled {
		use, short = "enable <stage>", "Let a worker acquire items again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !slices.Contains(config.StageNames, name) {
				return fmt.Errorf("%w %q", supervisor.ErrUnknownStage, name)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if err := store.SetWorkerEnabled(cmd.Context(), name, enabled); err != nil {
					return err
				}
				state := "disabled"
				if enabled {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Worker %s %s\n", name, state)
				return nil
			})
		},
	}
}
