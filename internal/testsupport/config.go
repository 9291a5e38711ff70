package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"smoothbdr/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timing values are shortened so worker loops settle within test timeouts.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.LeaseTimeout = 30
	cfgVal.Supervisor.RestartDelay = 1
	cfgVal.Supervisor.MaxRestartDelay = 4
	cfgVal.Supervisor.ShutdownTimeout = 5
	cfgVal.Supervisor.WatchConfig = false
	cfgVal.Stages = map[string]config.Stage{}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Normalize(); err != nil {
		t.Fatalf("normalize test config: %v", err)
	}

	return builder.cfg
}

// WithStage edits the [stages.<name>] table of the test config.
func WithStage(name string, edit func(*config.Stage)) ConfigOption {
	return func(b *configBuilder) {
		st := b.cfg.Stages[name]
		edit(&st)
		b.cfg.Stages[name] = st
	}
}

// WithOnlyStages disables every stage not listed.
func WithOnlyStages(names ...string) ConfigOption {
	return func(b *configBuilder) {
		keep := make(map[string]bool, len(names))
		for _, n := range names {
			keep[n] = true
		}
		for _, name := range config.StageNames {
			enabled := keep[name]
			st := b.cfg.Stages[name]
			st.Enabled = &enabled
			b.cfg.Stages[name] = st
		}
	}
}

// WithScript writes an executable shell script into the test bin directory
// and returns its path through dst.
func WithScript(name, body string, dst *string) ConfigOption {
	return func(b *configBuilder) {
		path := WriteScript(b.t, filepath.Join(b.baseDir, "bin"), name, body)
		if dst != nil {
			*dst = path
		}
	}
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
