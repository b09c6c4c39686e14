package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemon/servemon/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:9931", cfg.Listen)
	assert.Equal(t, "servemon.db", cfg.DBPath)
	assert.Equal(t, 30, cfg.SampleIntervalSec)
	assert.Equal(t, 72, cfg.RetentionHours)
	assert.Equal(t, 24, cfg.SummaryWindowHours)
	assert.Equal(t, 30*time.Second, cfg.SampleInterval())
}

func TestAlertRuleConversion(t *testing.T) {
	r := AlertRule{
		Name:          "slow_predictions",
		Metric:        "model.prediction_time_ms",
		Threshold:     250,
		Comparator:    "greater",
		WindowMinutes: 10,
	}

	rule := r.Rule()
	assert.Equal(t, "slow_predictions", rule.Name)
	assert.Equal(t, "model.prediction_time_ms", rule.MetricName)
	assert.Equal(t, 250.0, rule.Threshold)
	assert.Equal(t, model.CompareGreater, rule.Comparator)
	assert.Equal(t, 10*time.Minute, rule.Window)
}

// Load registers flags on the global flag set, so exactly one test in this
// binary may call it.
func TestLoadReadsNamedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:7777\ndatabase: custom.db\n"), 0644))

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	// -config PATH as the final two arguments, the daemon child's shape.
	os.Args = []string{"servemon", "-config", path}

	cfg := Load()
	assert.Equal(t, path, cfg.ConfigPath)
	assert.Equal(t, "127.0.0.1:7777", cfg.Listen)
	assert.Equal(t, "custom.db", cfg.DBPath)
}

func TestAlertRuleDefaultComparator(t *testing.T) {
	r := AlertRule{Name: "r", Metric: "m", Threshold: 1, WindowMinutes: 5}
	assert.Equal(t, model.CompareGreater, r.Rule().Comparator)
}
