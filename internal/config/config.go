package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/servemon/servemon/internal/model"
)

// Config holds the application configuration.
type Config struct {
	Listen  string `yaml:"listen"`
	DBPath  string `yaml:"database"`
	PidFile string `yaml:"pid_file"`
	LogFile string `yaml:"log_file"`

	SampleIntervalSec  int `yaml:"sample_interval_sec"`
	RetentionHours     int `yaml:"retention_hours"`
	SummaryWindowHours int `yaml:"summary_window_hours"`

	// Alert rules appended after the built-in defaults.
	Alerts []AlertRule `yaml:"alerts"`

	// Parsed from command line (not YAML)
	ConfigPath string `yaml:"-"`
}

// AlertRule is the YAML shape of a threshold rule.
type AlertRule struct {
	Name          string  `yaml:"name"`
	Metric        string  `yaml:"metric"`
	Threshold     float64 `yaml:"threshold"`
	Comparator    string  `yaml:"comparator"`
	WindowMinutes int     `yaml:"window_minutes"`
}

// Rule converts the YAML shape to the engine's rule type.
func (r AlertRule) Rule() model.AlertRule {
	comparator := model.Comparator(r.Comparator)
	if r.Comparator == "" {
		comparator = model.CompareGreater
	}
	return model.AlertRule{
		Name:       r.Name,
		MetricName: r.Metric,
		Threshold:  r.Threshold,
		Comparator: comparator,
		Window:     time.Duration(r.WindowMinutes) * time.Minute,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:9931",
		DBPath:             "servemon.db",
		PidFile:            "servemon.pid",
		LogFile:            "servemon.log",
		SampleIntervalSec:  30,
		RetentionHours:     72,
		SummaryWindowHours: 24,
		ConfigPath:         "config.yaml",
	}
}

// Load reads configuration with priority: defaults < config.yaml < env vars < flags.
// It expects os.Args to already have the subcommand stripped (if any).
func Load() *Config {
	cfg := DefaultConfig()

	// 1) Pre-scan for -config flag before parsing (so we know which file to read)
	configPath := cfg.ConfigPath
	for i, arg := range os.Args[1:] {
		if arg == "-config" || arg == "--config" {
			// arg is os.Args[i+1]; its value is os.Args[i+2]
			if i+2 < len(os.Args) {
				configPath = os.Args[i+2]
			}
		} else if strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "--config=") {
			configPath = strings.SplitN(arg, "=", 2)[1]
		}
	}

	// 2) Load YAML config file
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("[config] warning: failed to parse %s: %v", configPath, err)
		} else {
			log.Printf("[config] loaded %s", configPath)
		}
	}
	cfg.ConfigPath = configPath

	// 3) Environment variables override YAML
	if v := os.Getenv("SERVEMON_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SERVEMON_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SERVEMON_SAMPLE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SampleIntervalSec = n
		}
	}

	// 4) Flags override everything
	flag.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to config.yaml")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address (host:port)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.PidFile, "pid-file", cfg.PidFile, "PID file path")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path")
	flag.IntVar(&cfg.SampleIntervalSec, "sample-interval", cfg.SampleIntervalSec, "Sampling interval in seconds")
	flag.IntVar(&cfg.RetentionHours, "retention-hours", cfg.RetentionHours, "Hours of telemetry to retain")
	flag.Parse()

	if cfg.SampleIntervalSec < 1 {
		cfg.SampleIntervalSec = 1
	}

	return cfg
}

// SampleInterval returns the sampling cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSec) * time.Second
}
