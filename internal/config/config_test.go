package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ECORECYCLE_API_URL", "ECORECYCLE_EMAIL", "ECORECYCLE_CLASSIFIER",
		"ECORECYCLE_CLASSIFIER_URL", "ECORECYCLE_MODEL", "ECORECYCLE_SIMULATE",
		"ECORECYCLE_STORE_PATH", "ECORECYCLE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.APITimeout())
	assert.Equal(t, 60*time.Second, cfg.ClassifierTimeout())
	assert.Equal(t, 8*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 3, cfg.Points.RequiredPhotos)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.User.Email = "ana@example.com"
	cfg.Classifier.Kind = ClassifierOllama
	cfg.Classifier.Model = "llava"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user:\n  email: bo@example.com\npoints:\n  refresh_interval: 2s\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", cfg.User.Email)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 90, cfg.Upload.Quality)
	assert.True(t, cfg.Classifier.SimulateOnFailure)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API, cfg.API)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [not, a, map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ECORECYCLE_API_URL", "http://127.0.0.1:8000")
	t.Setenv("ECORECYCLE_EMAIL", "cami@example.com")
	t.Setenv("ECORECYCLE_CLASSIFIER", "llamacpp")
	t.Setenv("ECORECYCLE_MODEL", "qwen2-vl")
	t.Setenv("ECORECYCLE_SIMULATE", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.API.BaseURL)
	assert.Equal(t, "cami@example.com", cfg.User.Email)
	assert.Equal(t, ClassifierLlamaCpp, cfg.Classifier.Kind)
	assert.False(t, cfg.Classifier.SimulateOnFailure)

	t.Setenv("ECORECYCLE_SIMULATE", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classifier:\n  kind: ollama\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg.Classifier.Model = "llava"
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown classifier": func(c *Config) { c.Classifier.Kind = "magic" },
		"model missing":      func(c *Config) { c.Classifier.Kind = ClassifierOllama },
		"bad duration":       func(c *Config) { c.API.Timeout = "soon" },
		"negative interval":  func(c *Config) { c.Points.RefreshInterval = "-1s" },
		"no photos":          func(c *Config) { c.Points.RequiredPhotos = 0 },
		"quality":            func(c *Config) { c.Upload.Quality = 101 },
		"empty url":          func(c *Config) { c.API.BaseURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.yaml", filepath.Base(GetConfigPath()))
}
