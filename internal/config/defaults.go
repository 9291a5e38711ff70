package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	OrderCreated  = "created"
	OrderPriority = "priority"
	OrderQuality  = "quality"
)

const (
	defaultDataDir             = "~/.local/share/smoothbdr"
	defaultLogDir              = "~/.local/share/smoothbdr/logs"
	defaultLedgerDriver        = DriverSQLite
	defaultLedgerBusyTimeoutMS = 5000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultPollInterval        = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultStaleThreshold      = 120
	defaultLeaseTimeout        = 300
	defaultMaxAttempts         = 3
	defaultRetryDelay          = 0
	defaultBatchSize           = 1
	defaultQualityThreshold    = 0.7
	defaultPassthroughScore    = 1.0
	defaultNoNewDataLimit      = 3
	defaultMaxStrategyCycles   = 2
	defaultRestartDelay        = 5
	defaultMaxRestartDelay     = 300
	defaultRapidExitWindow     = 30
	defaultMaxRapidRestarts    = 5
	defaultShutdownTimeout     = 30
	defaultHealthSchedule      = "@every 60s"
	defaultBacklogWarn         = 100
	defaultBacklogCritical     = 500
	defaultAPIBind             = "127.0.0.1:7630"
	envLedgerDSN               = "SMOOTHBDR_LEDGER_DSN"
	envLogLevel                = "SMOOTHBDR_LOG_LEVEL"
	envAPIToken                = "SMOOTHBDR_API_TOKEN"
)

var defaultStrategies = []string{"broaden_sources", "alternate_queries", "related_entities"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Ledger: Ledger{
			Driver:        defaultLedgerDriver,
			BusyTimeoutMS: defaultLedgerBusyTimeoutMS,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			StaleThreshold:     defaultStaleThreshold,
			LeaseTimeout:       defaultLeaseTimeout,
			MaxAttempts:        defaultMaxAttempts,
			RetryDelay:         defaultRetryDelay,
			BatchSize:          defaultBatchSize,
		},
		Stages: map[string]Stage{},
		Deepening: Deepening{
			Strategies:        append([]string(nil), defaultStrategies...),
			NoNewDataLimit:    defaultNoNewDataLimit,
			MaxStrategyCycles: defaultMaxStrategyCycles,
		},
		Supervisor: Supervisor{
			RestartDelay:     defaultRestartDelay,
			MaxRestartDelay:  defaultMaxRestartDelay,
			RapidExitWindow:  defaultRapidExitWindow,
			MaxRapidRestarts: defaultMaxRapidRestarts,
			ShutdownTimeout:  defaultShutdownTimeout,
			HealthSchedule:   defaultHealthSchedule,
			BacklogWarn:      defaultBacklogWarn,
			BacklogCritical:  defaultBacklogCritical,
			WatchConfig:      true,
		},
		API: API{
			Enabled: true,
			Bind:    defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
