package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"smoothbdr/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "smoothbdr")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if got := cfg.LedgerDSN(); got != filepath.Join(wantData, "ledger.db") {
		t.Fatalf("unexpected sqlite ledger path: %q", got)
	}
	if cfg.Ledger.Driver != config.DriverSQLite {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Ledger.Driver)
	}
	if cfg.API.Bind != "127.0.0.1:7630" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if got := cfg.EnabledStages(); len(got) != len(config.StageNames) {
		t.Fatalf("expected every stage enabled by default, got %v", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "smoothbdr.toml")

	type stage struct {
		Enabled      bool    `toml:"enabled"`
		LeaseTimeout int     `toml:"lease_timeout"`
		Order        string  `toml:"order"`
		Threshold    float64 `toml:"quality_threshold"`
	}
	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Workflow struct {
			PollInterval int `toml:"poll_interval"`
			MaxAttempts  int `toml:"max_attempts"`
		} `toml:"workflow"`
		Stages map[string]stage `toml:"stages"`
	}
	custom := payload{Stages: map[string]stage{
		"research": {Enabled: true, LeaseTimeout: 900, Order: "Quality", Threshold: 0.8},
		"reply":    {Enabled: false},
	}}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Workflow.PollInterval = 2
	custom.Workflow.MaxAttempts = 4
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}

	research := cfg.StageSettings(config.StageResearch)
	if research.LeaseTimeout != 900*time.Second {
		t.Fatalf("expected stage lease override, got %s", research.LeaseTimeout)
	}
	if research.PollInterval != 2*time.Second {
		t.Fatalf("expected poll interval inherited from workflow, got %s", research.PollInterval)
	}
	if research.MaxAttempts != 4 {
		t.Fatalf("expected max attempts inherited from workflow, got %d", research.MaxAttempts)
	}
	if research.Order != config.OrderQuality {
		t.Fatalf("expected order normalized to quality, got %q", research.Order)
	}
	if research.QualityThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", research.QualityThreshold)
	}
	if cfg.StageSettings(config.StageReply).Enabled {
		t.Fatal("expected reply stage disabled")
	}
	if draft := cfg.StageSettings(config.StageDraft); draft.QualityThreshold == 0 || draft.Order != config.OrderCreated {
		t.Fatalf("expected draft defaults, got %+v", draft)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SMOOTHBDR_LEDGER_DSN", "postgres://lead@localhost/leads")
	t.Setenv("SMOOTHBDR_LOG_LEVEL", "DEBUG")
	t.Setenv("SMOOTHBDR_API_TOKEN", " s3cret ")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[ledger]\ndriver = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LedgerDSN() != "postgres://lead@localhost/leads" {
		t.Fatalf("expected dsn from env, got %q", cfg.LedgerDSN())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level from env, got %q", cfg.Logging.Level)
	}
	if cfg.API.Token != "s3cret" {
		t.Fatalf("expected api token from env, got %q", cfg.API.Token)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[workflow]\npoll_intervall = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[deepening]") {
		t.Fatalf("sample config missing deepening section: %s", contents)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.StageSettings(config.StageResearch).Order != config.OrderPriority {
		t.Fatalf("expected sample research order priority, got %q", cfg.StageSettings(config.StageResearch).Order)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"poll interval":      func(c *config.Config) { c.Workflow.PollInterval = 0 },
		"heartbeat vs lease": func(c *config.Config) { c.Workflow.HeartbeatInterval = c.Workflow.LeaseTimeout },
		"driver":             func(c *config.Config) { c.Ledger.Driver = "mysql" },
		"postgres dsn":       func(c *config.Config) { c.Ledger.Driver = config.DriverPostgres },
		"unknown stage":      func(c *config.Config) { c.Stages["scoring"] = config.Stage{} },
		"order":              func(c *config.Config) { c.Stages["draft"] = config.Stage{Order: "random"} },
		"threshold":          func(c *config.Config) { c.Stages["draft"] = config.Stage{QualityThreshold: 1.5} },
		"strategies":         func(c *config.Config) { c.Deepening.Strategies = nil },
		"no new data limit":  func(c *config.Config) { c.Deepening.NoNewDataLimit = 0 },
		"restart cap":        func(c *config.Config) { c.Supervisor.MaxRestartDelay = 1 },
		"backlog thresholds": func(c *config.Config) { c.Supervisor.BacklogCritical = 1 },
		"health schedule":    func(c *config.Config) { c.Supervisor.HealthSchedule = "every minute" },
		"log format":         func(c *config.Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
