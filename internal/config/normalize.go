package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize applies defaults and canonical forms. Load calls it; code that
// builds a Config by hand should call it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLedger()
	c.normalizeStages()
	c.normalizeDeepening()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLedger() {
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = defaultLedgerDriver
	}
	if c.Ledger.Driver == "postgresql" {
		c.Ledger.Driver = DriverPostgres
	}
	if value, ok := os.LookupEnv(envLedgerDSN); ok && strings.TrimSpace(c.Ledger.DSN) == "" {
		c.Ledger.DSN = strings.TrimSpace(value)
	}
	c.Ledger.DSN = strings.TrimSpace(c.Ledger.DSN)
	if c.Ledger.BusyTimeoutMS <= 0 {
		c.Ledger.BusyTimeoutMS = defaultLedgerBusyTimeoutMS
	}
}

func (c *Config) normalizeStages() {
	if c.Stages == nil {
		c.Stages = map[string]Stage{}
	}
	normalized := make(map[string]Stage, len(c.Stages))
	for name, st := range c.Stages {
		key := strings.ToLower(strings.TrimSpace(name))
		st.Order = strings.ToLower(strings.TrimSpace(st.Order))
		commands := st.Command[:0:0]
		for _, part := range st.Command {
			if part = strings.TrimSpace(part); part != "" {
				commands = append(commands, part)
			}
		}
		st.Command = commands
		normalized[key] = st
	}
	for _, name := range GatedStages {
		st := normalized[name]
		if st.QualityThreshold == 0 {
			st.QualityThreshold = defaultQualityThreshold
		}
		normalized[name] = st
	}
	for _, name := range StageNames {
		st := normalized[name]
		if st.DefaultScore == 0 {
			st.DefaultScore = defaultPassthroughScore
		}
		normalized[name] = st
	}
	c.Stages = normalized
}

func (c *Config) normalizeDeepening() {
	strategies := make([]string, 0, len(c.Deepening.Strategies))
	seen := make(map[string]struct{}, len(c.Deepening.Strategies))
	for _, s := range c.Deepening.Strategies {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		strategies = append(strategies, s)
	}
	c.Deepening.Strategies = strategies
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if value, ok := os.LookupEnv(envAPIToken); ok && strings.TrimSpace(value) != "" {
		c.API.Token = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if value, ok := os.LookupEnv(envLogLevel); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
