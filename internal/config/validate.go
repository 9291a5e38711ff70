package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateDeepening(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres driver (or set %s)", envLedgerDSN)
		}
		return nil
	default:
		return fmt.Errorf("ledger.driver: unsupported value %q (want sqlite or postgres)", c.Ledger.Driver)
	}
}

func (c *Config) validateWorkflow() error {
	wf := c.Workflow
	checks := []struct {
		name  string
		value int
	}{
		{"workflow.poll_interval", wf.PollInterval},
		{"workflow.error_retry_interval", wf.ErrorRetryInterval},
		{"workflow.heartbeat_interval", wf.HeartbeatInterval},
		{"workflow.stale_threshold", wf.StaleThreshold},
		{"workflow.lease_timeout", wf.LeaseTimeout},
		{"workflow.max_attempts", wf.MaxAttempts},
		{"workflow.batch_size", wf.BatchSize},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%s must be positive", check.name)
		}
	}
	if wf.RetryDelay < 0 {
		return errors.New("workflow.retry_delay must be >= 0")
	}
	if wf.HeartbeatInterval >= wf.LeaseTimeout {
		return errors.New("workflow.heartbeat_interval must be shorter than workflow.lease_timeout")
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, st := range c.Stages {
		if !slices.Contains(StageNames, name) {
			return fmt.Errorf("stages.%s: unknown stage (known: %v)", name, StageNames)
		}
		switch st.Order {
		case "", OrderCreated, OrderPriority, OrderQuality:
		default:
			return fmt.Errorf("stages.%s.order: unsupported value %q", name, st.Order)
		}
		if st.QualityThreshold < 0 || st.QualityThreshold > 1 {
			return fmt.Errorf("stages.%s.quality_threshold must be between 0 and 1", name)
		}
		if st.DefaultScore < 0 || st.DefaultScore > 1 {
			return fmt.Errorf("stages.%s.default_score must be between 0 and 1", name)
		}
		if st.Timeout < 0 || st.LeaseTimeout < 0 || st.MaxAttempts < 0 || st.PollInterval < 0 || st.BatchSize < 0 {
			return fmt.Errorf("stages.%s: timing values must be >= 0", name)
		}
		if st.Timeout > 0 && st.LeaseTimeout > 0 && st.Timeout >= st.LeaseTimeout {
			return fmt.Errorf("stages.%s.timeout must be shorter than its lease_timeout", name)
		}
	}
	return nil
}

func (c *Config) validateDeepening() error {
	if len(c.Deepening.Strategies) == 0 {
		return errors.New("deepening.strategies must list at least one strategy")
	}
	if c.Deepening.NoNewDataLimit < 1 {
		return errors.New("deepening.no_new_data_limit must be at least 1")
	}
	if c.Deepening.MaxStrategyCycles < 1 {
		return errors.New("deepening.max_strategy_cycles must be at least 1")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	sv := c.Supervisor
	if sv.RestartDelay <= 0 {
		return errors.New("supervisor.restart_delay must be positive")
	}
	if sv.MaxRestartDelay < sv.RestartDelay {
		return errors.New("supervisor.max_restart_delay must be >= supervisor.restart_delay")
	}
	if sv.RapidExitWindow < 0 {
		return errors.New("supervisor.rapid_exit_window must be >= 0")
	}
	if sv.MaxRapidRestarts < 1 {
		return errors.New("supervisor.max_rapid_restarts must be at least 1")
	}
	if sv.ShutdownTimeout <= 0 {
		return errors.New("supervisor.shutdown_timeout must be positive")
	}
	if sv.BacklogWarn < 0 || sv.BacklogCritical < sv.BacklogWarn {
		return errors.New("supervisor.backlog_critical must be >= supervisor.backlog_warn >= 0")
	}
	if _, err := cron.ParseStandard(sv.HealthSchedule); err != nil {
		return fmt.Errorf("supervisor.health_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
