package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newTestViper(t))
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Batch.Concurrency)
	require.Equal(t, 30*time.Second, cfg.Batch.PerTaskTimeout)
	require.Equal(t, 5, cfg.Batch.MaxRetries)
	require.Equal(t, time.Second, cfg.Batch.BaseBackoff)
	require.Equal(t, time.Minute, cfg.Batch.MaxBackoff)
	require.Equal(t, 0.70, cfg.Rate.SafetyThreshold)
	require.Equal(t, "libsql", cfg.Store.Driver)
	require.Equal(t, "table", cfg.Output)
	require.Equal(t, "SIMPLE", cfg.Logging.Profile)
}

func TestFromViperRejectsBadValues(t *testing.T) {
	v := newTestViper(t)
	v.Set("batch.concurrency", 0)
	_, err := FromViper(v)
	require.Error(t, err)

	v = newTestViper(t)
	v.Set("rate.safety_threshold", 1.5)
	_, err = FromViper(v)
	require.Error(t, err)

	v = newTestViper(t)
	v.Set("rate.limits", map[string]int{"/api/v1/users": -1})
	_, err = FromViper(v)
	require.Error(t, err)
}

func TestLoadLimitsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  /api/v1/users: 300\n  /custom/api: 50\n"), 0o600))

	limits, err := LoadLimitsFile(path)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"/api/v1/users": 300, "/custom/api": 50}, limits)
}

func TestLoadLimitsFileErrors(t *testing.T) {
	_, err := LoadLimitsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: {}\n"), 0o600))
	_, err = LoadLimitsFile(path)
	require.Error(t, err)

	path = filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  /api/v1/users: 0\n"), 0o600))
	_, err = LoadLimitsFile(path)
	require.Error(t, err)
}

func TestFromViperMergesLimitsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  /api/v1/users: 300\n  /custom/api: 50\n"), 0o600))

	v := newTestViper(t)
	v.Set("rate.limits_file", path)
	v.Set("rate.limits", map[string]int{"/api/v1/users": 900})

	cfg, err := FromViper(v)
	require.NoError(t, err)

	// Inline limits win over the limits file.
	require.Equal(t, 900, cfg.Rate.Limits["/api/v1/users"])
	require.Equal(t, 50, cfg.Rate.Limits["/custom/api"])
}

func TestCategoriesMergeOverrides(t *testing.T) {
	cfg, err := FromViper(newTestViper(t))
	require.NoError(t, err)
	cfg.Rate.Limits = map[string]int{
		"/api/v1/apps": 250,
		"/custom/api":  50,
	}

	categories := cfg.Categories()
	byPattern := map[string]int{}
	for _, category := range categories {
		byPattern[category.Pattern] = category.PerMinute
	}

	require.Equal(t, 250, byPattern["/api/v1/apps"])
	require.Equal(t, 50, byPattern["/custom/api"])
	require.Equal(t, 2000, byPattern["/api/v1/users/{id}"])
	require.Equal(t, 1200, byPattern["/governance/api/v1"])
}
