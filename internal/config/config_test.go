package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.Equal(t, 0.8, cfg.Generator.Temperature)
	assert.Equal(t, 500, cfg.Generator.MaxTokens)
	assert.Equal(t, "postpilot.firings", cfg.Events.SubjectPrefix)
	assert.Equal(t, "https://api.notion.com", cfg.Notion.BaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"provider":        "generator:\n  provider: llama\n",
		"workers":         "scheduler:\n  workers: -1\n",
		"duration":        "scheduler:\n  publish_timeout: soon\n",
		"platform":        "publisher:\n  twitter:\n    timeout: later\n",
		"notion required": "notion:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, Duration("30s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("-5s", time.Minute))
}
