package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smoothbdr/internal/api"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
)

func newSuperviseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Run the supervisor and one worker process per enabled stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), ctx)
		},
	}
}

func runSupervisor(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg, "supervisor")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	sup, err := supervisor.New(cfg, store, logger, supervisor.WithConfigPath(ctx.childConfigPath()))
	if err != nil {
		return err
	}

	if cfg.API.Enabled {
		srv, err := api.NewServer(cfg, store, sup, logger)
		if err != nil {
			return err
		}
		if err := srv.Start(signalCtx); err != nil {
			logger.Error("api server unavailable", logging.Error(err))
			return err
		}
		defer srv.Shutdown()
	}

	logger.Info("supervisor starting",
		logging.String(logging.FieldEventType, "supervisor_start"),
		logging.Int("pid", os.Getpid()),
		logging.String("ledger", store.Location()),
	)
	if err := sup.Run(signalCtx); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			pid, _ := supervisor.RunningPID(cfg)
			return fmt.Errorf("%w (pid %d)", err, pid)
		}
		return err
	}
	logger.Info("supervisor stopped", logging.String(logging.FieldEventType, "supervisor_stop"))
	return nil
}
