package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.API.GenerateTimeout)
	assert.Equal(t, time.Minute, cfg.API.DownloadTimeout)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "schedule", cfg.Booking.DateSource)
	assert.Equal(t, 30, cfg.Booking.WindowDays)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := "api:\n  baseUrl: http://file.example/api\nbooking:\n  dateSource: placeholder\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://file.example/api", cfg.API.BaseURL)
	assert.Equal(t, "placeholder", cfg.Booking.DateSource)

	t.Setenv("VITE_API_URL", "http://env.example/api")
	cfg, err = LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example/api", cfg.API.BaseURL)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Session.Store = "redis"
	assert.Error(t, cfg.Validate())
	cfg.Redis.URL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate())

	cfg.Booking.DateSource = "oracle"
	assert.Error(t, cfg.Validate())
}
