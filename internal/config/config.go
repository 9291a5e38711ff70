package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Pipeline stage names. Each stage consumes the Ledger queue of the same name.
const (
	StageDiscovery = "discovery"
	StageResearch  = "research"
	StageDeepening = "deepening"
	StageDraft     = "draft"
	StageDelivery  = "delivery"
	StageReply     = "reply"
)

// StageNames lists every known stage in pipeline order.
var StageNames = []string{StageDiscovery, StageResearch, StageDeepening, StageDraft, StageDelivery, StageReply}

// GatedStages pass their results through the Quality Gate; their low-quality
// items feed the deepening stage.
var GatedStages = []string{StageResearch, StageDraft}

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Ledger selects the shared store backing every queue.
type Ledger struct {
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Workflow contains worker loop timing and the defaults every stage inherits.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	StaleThreshold     int `toml:"stale_threshold"`
	LeaseTimeout       int `toml:"lease_timeout"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryDelay         int `toml:"retry_delay"`
	BatchSize          int `toml:"batch_size"`
}

// Stage holds per-stage overrides. Zero values inherit from [workflow].
type Stage struct {
	Enabled          *bool    `toml:"enabled"`
	Command          []string `toml:"command"`
	Timeout          int      `toml:"timeout"`
	LeaseTimeout     int      `toml:"lease_timeout"`
	MaxAttempts      int      `toml:"max_attempts"`
	PollInterval     int      `toml:"poll_interval"`
	BatchSize        int      `toml:"batch_size"`
	Order            string   `toml:"order"`
	QualityThreshold float64  `toml:"quality_threshold"`
	DefaultScore     float64  `toml:"default_score"`
	RequireApproval  bool     `toml:"require_approval"`
}

// Deepening configures strategy cycling for low-quality items.
type Deepening struct {
	Strategies        []string `toml:"strategies"`
	NoNewDataLimit    int      `toml:"no_new_data_limit"`
	MaxStrategyCycles int      `toml:"max_strategy_cycles"`
}

// Supervisor configures process restarts and health classification.
type Supervisor struct {
	RestartDelay     int    `toml:"restart_delay"`
	MaxRestartDelay  int    `toml:"max_restart_delay"`
	RapidExitWindow  int    `toml:"rapid_exit_window"`
	MaxRapidRestarts int    `toml:"max_rapid_restarts"`
	ShutdownTimeout  int    `toml:"shutdown_timeout"`
	HealthSchedule   string `toml:"health_schedule"`
	BacklogWarn      int    `toml:"backlog_warn"`
	BacklogCritical  int    `toml:"backlog_critical"`
	WatchConfig      bool   `toml:"watch_config"`
}

// API configures the HTTP control surface.
type API struct {
	Enabled     bool     `toml:"enabled"`
	Bind        string   `toml:"bind"`
	CORSOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for smoothbdr.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Ledger: store driver and connection string
//   - Workflow: worker loop timing and per-stage defaults
//   - Stages: per-stage overrides keyed by stage name
//   - Deepening: strategy list and exhaustion limits
//   - Supervisor: restart backoff and health thresholds
//   - API: HTTP control surface
//   - Logging: log format and level
type Config struct {
	Paths      Paths            `toml:"paths"`
	Ledger     Ledger           `toml:"ledger"`
	Workflow   Workflow         `toml:"workflow"`
	Stages     map[string]Stage `toml:"stages"`
	Deepening  Deepening        `toml:"deepening"`
	Supervisor Supervisor       `toml:"supervisor"`
	API        API              `toml:"api"`
	Logging    Logging          `toml:"logging"`
}

// StageSettings is a stage configuration with workflow defaults applied.
type StageSettings struct {
	Name             string
	Enabled          bool
	Command          []string
	Timeout          time.Duration
	LeaseTimeout     time.Duration
	MaxAttempts      int
	PollInterval     time.Duration
	RetryDelay       time.Duration
	BatchSize        int
	Order            string
	QualityThreshold float64
	DefaultScore     float64
	RequireApproval  bool
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/smoothbdr/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("smoothbdr.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageSettings resolves the effective settings for a stage.
func (c *Config) StageSettings(name string) StageSettings {
	st := c.Stages[name]
	wf := c.Workflow
	out := StageSettings{
		Name:             name,
		Enabled:          st.Enabled == nil || *st.Enabled,
		Command:          append([]string(nil), st.Command...),
		Timeout:          seconds(st.Timeout),
		LeaseTimeout:     seconds(firstPositive(st.LeaseTimeout, wf.LeaseTimeout)),
		MaxAttempts:      firstPositive(st.MaxAttempts, wf.MaxAttempts),
		PollInterval:     seconds(firstPositive(st.PollInterval, wf.PollInterval)),
		RetryDelay:       seconds(wf.RetryDelay),
		BatchSize:        firstPositive(st.BatchSize, wf.BatchSize),
		Order:            st.Order,
		QualityThreshold: st.QualityThreshold,
		DefaultScore:     st.DefaultScore,
		RequireApproval:  st.RequireApproval,
	}
	if out.Order == "" {
		out.Order = OrderCreated
	}
	return out
}

// EnabledStages returns the names of stages whose enabled flag is set, in pipeline order.
func (c *Config) EnabledStages() []string {
	var names []string
	for _, name := range StageNames {
		if c.StageSettings(name).Enabled {
			names = append(names, name)
		}
	}
	return names
}

// LedgerDSN returns the connection string for the configured driver.
func (c *Config) LedgerDSN() string {
	if c.Ledger.Driver == DriverSQLite && strings.TrimSpace(c.Ledger.DSN) == "" {
		return filepath.Join(c.Paths.DataDir, "ledger.db")
	}
	return c.Ledger.DSN
}

// Duration helpers for the [workflow] and [supervisor] sections.
func (c *Config) ErrorRetryInterval() time.Duration { return seconds(c.Workflow.ErrorRetryInterval) }
func (c *Config) HeartbeatInterval() time.Duration  { return seconds(c.Workflow.HeartbeatInterval) }
func (c *Config) StaleThreshold() time.Duration     { return seconds(c.Workflow.StaleThreshold) }
func (c *Config) RestartDelay() time.Duration       { return seconds(c.Supervisor.RestartDelay) }
func (c *Config) MaxRestartDelay() time.Duration    { return seconds(c.Supervisor.MaxRestartDelay) }
func (c *Config) RapidExitWindow() time.Duration    { return seconds(c.Supervisor.RapidExitWindow) }
func (c *Config) ShutdownTimeout() time.Duration    { return seconds(c.Supervisor.ShutdownTimeout) }

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
// The file is replaced atomically so a concurrent reader never sees a partial write.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
