package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SFW"

const (
	FeedModeHTTP     = "http"
	FeedModeSimulate = "simulate"
)

type Config struct {
	Environment   string
	Actor         string
	Log           LogConfig
	Marker        MarkerConfig
	Poll          PollConfig
	Feed          FeedConfig
	Teams         TeamsConfig
	Store         StoreConfig
	Features      FeaturesConfig
	Status        StatusConfig
	Observability ObservabilityConfig
}

type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

type MarkerConfig struct {
	Path           string
	FlushEachEntry bool
}

type PollConfig struct {
	IdleSleep time.Duration
	MaxPages  int
}

type FeedConfig struct {
	Mode        string
	URL         string
	Token       string
	PageSize    int
	NewestFirst bool
	Timeout     time.Duration

	SimMaxPage     int
	SimTemperature float32
	SimMaxLatency  time.Duration
}

type TeamsConfig struct {
	URL              string
	Token            string
	Timeout          time.Duration
	DefaultCRMTeamID string
}

type StoreConfig struct {
	Driver string
	DSN    string
}

type FeaturesConfig struct {
	// CanAssignRoles overrides the stored feature flag when set.
	CanAssignRoles *bool
}

type StatusConfig struct {
	Addr string
}

type ObservabilityConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from an optional .env file, an optional config
// file (SFW_CONFIG) and SFW_* environment variables, in increasing priority.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return load()
}

func load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "dev")
	v.SetDefault("actor", "svc-support-feed")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("marker.path", "data/marker")
	v.SetDefault("marker.flush_each_entry", false)
	v.SetDefault("poll.idle_sleep", "5s")
	v.SetDefault("poll.max_pages", 0)
	v.SetDefault("feed.mode", FeedModeHTTP)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.token", "")
	v.SetDefault("feed.page_size", 25)
	v.SetDefault("feed.newest_first", true)
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.sim.max_page", 10)
	v.SetDefault("feed.sim.temperature", 0.8)
	v.SetDefault("feed.sim.max_latency", "0s")
	v.SetDefault("teams.url", "")
	v.SetDefault("teams.token", "")
	v.SetDefault("teams.timeout", "10s")
	v.SetDefault("teams.default_crm_team_id", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/support-feed.sqlite")
	v.SetDefault("status.addr", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "support-feed-worker")

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return Config{}, fmt.Errorf("invalid SFW_LOG_LEVEL: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(v.GetString("log.format")))
	if format != "text" && format != "json" {
		return Config{}, fmt.Errorf("invalid SFW_LOG_FORMAT: %q", format)
	}

	idleSleep, err := duration(v, "poll.idle_sleep")
	if err != nil {
		return Config{}, err
	}
	if idleSleep <= 0 {
		return Config{}, fmt.Errorf("invalid SFW_POLL_IDLE_SLEEP: must be positive")
	}
	feedTimeout, err := duration(v, "feed.timeout")
	if err != nil {
		return Config{}, err
	}
	teamsTimeout, err := duration(v, "teams.timeout")
	if err != nil {
		return Config{}, err
	}
	simLatency, err := duration(v, "feed.sim.max_latency")
	if err != nil {
		return Config{}, err
	}

	maxPages := v.GetInt("poll.max_pages")
	if maxPages < 0 {
		return Config{}, fmt.Errorf("invalid SFW_POLL_MAX_PAGES: %d", maxPages)
	}

	mode := strings.ToLower(strings.TrimSpace(v.GetString("feed.mode")))
	feedURL := strings.TrimSpace(v.GetString("feed.url"))
	switch mode {
	case FeedModeHTTP:
		if feedURL == "" {
			return Config{}, fmt.Errorf("SFW_FEED_URL is required in %s mode", FeedModeHTTP)
		}
	case FeedModeSimulate:
	default:
		return Config{}, fmt.Errorf("invalid SFW_FEED_MODE: %q", mode)
	}

	pageSize := v.GetInt("feed.page_size")
	if pageSize <= 0 {
		pageSize = 25
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("store.driver")))
	if driver != "sqlite" && driver != "mysql" {
		return Config{}, fmt.Errorf("invalid SFW_STORE_DRIVER: %q", driver)
	}

	var canAssignRoles *bool
	if v.IsSet("features.can_assign_roles") {
		value := v.GetBool("features.can_assign_roles")
		canAssignRoles = &value
	}

	return Config{
		Environment: strings.TrimSpace(v.GetString("env")),
		Actor:       strings.TrimSpace(v.GetString("actor")),
		Log:         LogConfig{Level: level, Format: format},
		Marker: MarkerConfig{
			Path:           strings.TrimSpace(v.GetString("marker.path")),
			FlushEachEntry: v.GetBool("marker.flush_each_entry"),
		},
		Poll: PollConfig{IdleSleep: idleSleep, MaxPages: maxPages},
		Feed: FeedConfig{
			Mode:           mode,
			URL:            feedURL,
			Token:          strings.TrimSpace(v.GetString("feed.token")),
			PageSize:       pageSize,
			NewestFirst:    v.GetBool("feed.newest_first"),
			Timeout:        feedTimeout,
			SimMaxPage:     v.GetInt("feed.sim.max_page"),
			SimTemperature: float32(v.GetFloat64("feed.sim.temperature")),
			SimMaxLatency:  simLatency,
		},
		Teams: TeamsConfig{
			URL:              strings.TrimSpace(v.GetString("teams.url")),
			Token:            strings.TrimSpace(v.GetString("teams.token")),
			Timeout:          teamsTimeout,
			DefaultCRMTeamID: strings.TrimSpace(v.GetString("teams.default_crm_team_id")),
		},
		Store: StoreConfig{
			Driver: driver,
			DSN:    strings.TrimSpace(v.GetString("store.dsn")),
		},
		Features: FeaturesConfig{CanAssignRoles: canAssignRoles},
		Status:   StatusConfig{Addr: strings.TrimSpace(v.GetString("status.addr"))},
		Observability: ObservabilityConfig{
			OTLPEndpoint: strings.TrimSpace(v.GetString("otel.endpoint")),
			ServiceName:  strings.TrimSpace(v.GetString("otel.service_name")),
		},
	}, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	return d, nil
}
