// Copyright 2025 James Ross
// Package config loads and validates the sync plugin's configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Source describes how to reach the upstream content-management server.
type Source struct {
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"api_key"`
	SessionCookie string `mapstructure:"session_cookie"`
}

// Target describes how to reach the downstream media server.
type Target struct {
	URL            string  `mapstructure:"url"`
	Token          string  `mapstructure:"token"`
	ConnectTimeout float64 `mapstructure:"connect_timeout"`
	ReadTimeout    float64 `mapstructure:"read_timeout"`
	Library        string  `mapstructure:"library"`
}

// Libraries parses Target.Library into individual library names.
func (t Target) Libraries() []string {
	if strings.TrimSpace(t.Library) == "" {
		return nil
	}
	parts := strings.Split(t.Library, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SyncToggles lets operators disable individual metadata fields without
// turning off the whole plugin.
type SyncToggles struct {
	Master     bool `mapstructure:"master"`
	Studio     bool `mapstructure:"studio"`
	Summary    bool `mapstructure:"summary"`
	Tagline    bool `mapstructure:"tagline"`
	Date       bool `mapstructure:"date"`
	Performers bool `mapstructure:"performers"`
	Tags       bool `mapstructure:"tags"`
	Poster     bool `mapstructure:"poster"`
	Background bool `mapstructure:"background"`
	Collection bool `mapstructure:"collection"`
}

// Breaker tunes the circuit breaker over the Target connection.
type Breaker struct {
	FailureThreshold int     `mapstructure:"failure_threshold"`
	CooldownSeconds  float64 `mapstructure:"cooldown_seconds"`
}

// Reconcile tunes the background gap-detection scan.
type Reconcile struct {
	Interval string `mapstructure:"interval"` // never, hourly, daily, weekly
	Scope    string `mapstructure:"scope"`    // all, 24h, 7days
}

// PathMapping is one entry of the bidirectional Source<->Target path
// translation table.
type PathMapping struct {
	Name            string `mapstructure:"name"`
	SourcePattern   string `mapstructure:"source_pattern"`
	TargetPattern   string `mapstructure:"target_pattern"`
	CaseInsensitive bool   `mapstructure:"case_insensitive"`
}

// Config is the full plugin configuration.
type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	Source            Source        `mapstructure:"source"`
	Target            Target        `mapstructure:"target"`
	MaxRetries        int           `mapstructure:"max_retries"`
	PollInterval      float64       `mapstructure:"poll_interval"`
	StrictMode        bool          `mapstructure:"strict_mode"`
	StrictMatching    bool          `mapstructure:"strict_matching"`
	PreserveTargetEdits bool        `mapstructure:"preserve_target_edits"`
	DLQRetentionDays  int           `mapstructure:"dlq_retention_days"`
	MaxTags           int           `mapstructure:"max_tags"`
	DebugLogging      bool          `mapstructure:"debug_logging"`
	ObfuscatePaths    bool          `mapstructure:"obfuscate_paths"`
	TriggerTargetScan bool          `mapstructure:"trigger_target_scan"`
	Sync              SyncToggles   `mapstructure:"sync"`
	Breaker           Breaker       `mapstructure:"breaker"`
	Reconcile         Reconcile     `mapstructure:"reconcile"`
	PathMappings      []PathMapping `mapstructure:"path_mappings"`
	ExcludeGlobs      []string      `mapstructure:"exclude_globs"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	ReconcileCron     string        `mapstructure:"reconcile_cron"`
	StateDir          string        `mapstructure:"state_dir"`
	QueuePath         string        `mapstructure:"queue_path"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("max_retries", 5)
	v.SetDefault("poll_interval", 1.0)
	v.SetDefault("strict_mode", false)
	v.SetDefault("strict_matching", true)
	v.SetDefault("preserve_target_edits", false)
	v.SetDefault("dlq_retention_days", 30)
	v.SetDefault("max_tags", 100)
	v.SetDefault("debug_logging", false)
	v.SetDefault("obfuscate_paths", false)
	v.SetDefault("trigger_target_scan", false)

	v.SetDefault("source.url", "")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.session_cookie", "")

	v.SetDefault("target.url", "")
	v.SetDefault("target.token", "")
	v.SetDefault("target.library", "")
	v.SetDefault("target.connect_timeout", 5.0)
	v.SetDefault("target.read_timeout", 30.0)

	v.SetDefault("sync.master", true)
	v.SetDefault("sync.studio", true)
	v.SetDefault("sync.summary", true)
	v.SetDefault("sync.tagline", true)
	v.SetDefault("sync.date", true)
	v.SetDefault("sync.performers", true)
	v.SetDefault("sync.tags", true)
	v.SetDefault("sync.poster", true)
	v.SetDefault("sync.background", true)
	v.SetDefault("sync.collection", true)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_seconds", 30.0)

	v.SetDefault("reconcile.interval", "never")
	v.SetDefault("reconcile.scope", "24h")

	v.SetDefault("metrics_addr", "")
	v.SetDefault("reconcile_cron", "@every 15m")

	v.SetDefault("state_dir", "./state")
	v.SetDefault("queue_path", "./state/queue.db")
}

// Load reads configuration from path (if non-empty) plus SYNCPLUGIN_-
// prefixed environment variables, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNCPLUGIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
