package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, doc map[string]any) string {
	t.Helper()
	b, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "eload.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ELOAD_CONFIG", "")
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, "N", cfg.Serial.Parity)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.ReadTimeout)

	assert.Equal(t, time.Second, cfg.Instrument.PollInterval)
	assert.Equal(t, 512, cfg.Instrument.MaxScan)
	assert.Equal(t, RetryConfig{
		MaxAttempts: 3,
		SettleDelay: 500 * time.Millisecond,
		RetryDelay:  700 * time.Millisecond,
	}, cfg.Instrument.Retry)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.API.Auth.Enabled)
	assert.True(t, cfg.Metrics.Enable)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"serial": map[string]any{
			"device": "/dev/ttyACM1",
			"parity": "E",
		},
		"instrument": map[string]any{
			"pollInterval":  "250ms",
			"deepPollEvery": 10,
			"retry":         map[string]any{"maxAttempts": 5},
		},
		"api": map[string]any{
			"auth": map[string]any{
				"enabled": true,
				"apiKeys": []string{"sk_test_12345678"},
			},
		},
	})
	t.Setenv("ELOAD_SERIAL_BAUD", "19200")
	t.Setenv("ELOAD_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Device)
	assert.Equal(t, "E", cfg.Serial.Parity)
	assert.Equal(t, 19200, cfg.Serial.Baud)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Instrument.PollInterval)
	assert.Equal(t, 10, cfg.Instrument.DeepPollEvery)
	assert.Equal(t, 5, cfg.Instrument.Retry.MaxAttempts)
	assert.Equal(t, 700*time.Millisecond, cfg.Instrument.Retry.RetryDelay)
	assert.Equal(t, []string{"sk_test_12345678"}, cfg.API.Auth.APIKeys)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeYAML(t, map[string]any{"serial": map[string]any{"device": "sim"}})
	t.Setenv("ELOAD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Serial.Device)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeYAML(t, map[string]any{
		"api": map[string]any{"auth": map[string]any{"enabled": true}},
	})
	_, err = Load(path)
	assert.ErrorContains(t, err, "api key")

	path = writeYAML(t, map[string]any{
		"instrument": map[string]any{"retry": map[string]any{"maxAttempts": 0}},
	})
	_, err = Load(path)
	assert.ErrorContains(t, err, "maxAttempts")
}
