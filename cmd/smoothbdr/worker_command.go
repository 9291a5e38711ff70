package main

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		stageName string
		once      bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker loop for one stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(stageName)
			if !slices.Contains(config.StageNames, name) {
				return fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(config.StageNames, ", "))
			}
			return runWorker(cmd, ctx, name, once)
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "Stage to run ("+strings.Join(config.StageNames, ", ")+")")
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func runWorker(cmd *cobra.Command, ctx *commandContext, name string, once bool) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg, name)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	st, err := workflow.StageFor(cfg, name, logger)
	if err != nil {
		return err
	}
	worker, err := workflow.NewWorker(st, store, logger)
	if err != nil {
		return err
	}

	if !once {
		return worker.Run(signalCtx)
	}
	n, err := worker.RunOnce(signalCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: processed %d item(s)\n", name, n)
	return nil
}
