package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SFW_FEED_URL", "https://feeds.example.com/support/events")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Poll.IdleSleep)
	assert.Zero(t, cfg.Poll.MaxPages)
	assert.Equal(t, FeedModeHTTP, cfg.Feed.Mode)
	assert.True(t, cfg.Feed.NewestFirst)
	assert.Equal(t, 25, cfg.Feed.PageSize)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Nil(t, cfg.Features.CanAssignRoles)
	assert.Empty(t, cfg.Status.Addr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SFW_FEED_MODE", "simulate")
	t.Setenv("SFW_LOG_LEVEL", "debug")
	t.Setenv("SFW_LOG_FORMAT", "JSON")
	t.Setenv("SFW_POLL_IDLE_SLEEP", "250ms")
	t.Setenv("SFW_POLL_MAX_PAGES", "3")
	t.Setenv("SFW_STORE_DRIVER", "mysql")
	t.Setenv("SFW_STORE_DSN", "user:pass@tcp(db:3306)/support")
	t.Setenv("SFW_FEATURES_CAN_ASSIGN_ROLES", "true")
	t.Setenv("SFW_MARKER_FLUSH_EACH_ENTRY", "true")
	t.Setenv("SFW_STATUS_ADDR", ":8081")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, FeedModeSimulate, cfg.Feed.Mode)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.IdleSleep)
	assert.Equal(t, 3, cfg.Poll.MaxPages)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	require.NotNil(t, cfg.Features.CanAssignRoles)
	assert.True(t, *cfg.Features.CanAssignRoles)
	assert.True(t, cfg.Marker.FlushEachEntry)
	assert.Equal(t, ":8081", cfg.Status.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"missing feed url": {},
		"bad mode":         {"SFW_FEED_MODE": "kafka"},
		"bad duration":     {"SFW_FEED_MODE": "simulate", "SFW_POLL_IDLE_SLEEP": "soon"},
		"zero idle sleep":  {"SFW_FEED_MODE": "simulate", "SFW_POLL_IDLE_SLEEP": "0s"},
		"bad driver":       {"SFW_FEED_MODE": "simulate", "SFW_STORE_DRIVER": "oracle"},
		"bad level":        {"SFW_FEED_MODE": "simulate", "SFW_LOG_LEVEL": "loud"},
		"bad format":       {"SFW_FEED_MODE": "simulate", "SFW_LOG_FORMAT": "xml"},
		"negative pages":   {"SFW_FEED_MODE": "simulate", "SFW_POLL_MAX_PAGES": "-1"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feed:
  mode: simulate
teams:
  url: https://teams.example.com
  default_crm_team_id: crm-42
poll:
  idle_sleep: 1s
`), 0o600))
	t.Setenv("SFW_CONFIG", path)
	t.Setenv("SFW_POLL_IDLE_SLEEP", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FeedModeSimulate, cfg.Feed.Mode)
	assert.Equal(t, "https://teams.example.com", cfg.Teams.URL)
	assert.Equal(t, "crm-42", cfg.Teams.DefaultCRMTeamID)
	assert.Equal(t, 2*time.Second, cfg.Poll.IdleSleep, "environment wins over the file")
}
