// Package config loads and validates bridge service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Work     WorkConfig     `mapstructure:"work"`
	Progress ProgressConfig `mapstructure:"progress"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	AttachTimeout   time.Duration `mapstructure:"attach_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BridgeConfig sets per-session bridge behavior.
type BridgeConfig struct {
	SubmitPolicy string        `mapstructure:"submit_policy"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// Policy returns the parsed submit policy. Validate guarantees it parses.
func (b BridgeConfig) Policy() bridge.Policy {
	p, _ := bridge.ParsePolicy(b.SubmitPolicy)
	return p
}

// WorkConfig describes the simulated stage work and admission limits.
type WorkConfig struct {
	StageA         time.Duration `mapstructure:"stage_a"`
	StageB         time.Duration `mapstructure:"stage_b"`
	Cleanup        time.Duration `mapstructure:"cleanup"`
	Fail           []string      `mapstructure:"fail"`
	AdmissionRPS   float64       `mapstructure:"admission_rps"`
	AdmissionBurst int           `mapstructure:"admission_burst"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize  int           `mapstructure:"buffer_size"`
	MaxBatch    int           `mapstructure:"max_batch"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	LogRecords  bool          `mapstructure:"log_records"`
}

// DBConfig controls access to Postgres. An empty DSN keeps history in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// PubSubConfig holds the session-end notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where session transcripts are written.
type ArchiveConfig struct {
	// Backend is "", "memory", "local" or "gcs". Empty disables archiving.
	Backend    string `mapstructure:"backend"`
	BaseDir    string `mapstructure:"base_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	Prefix     string `mapstructure:"prefix"`
	MaxRecords int    `mapstructure:"max_records"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_sessions", 1024)
	v.SetDefault("server.attach_timeout", "5m")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("bridge.submit_policy", "reject")
	v.SetDefault("bridge.stage_timeout", "0s")
	v.SetDefault("work.stage_a", "200ms")
	v.SetDefault("work.stage_b", "200ms")
	v.SetDefault("work.cleanup", "50ms")
	v.SetDefault("work.fail", []string{})
	v.SetDefault("work.admission_rps", 0)
	v.SetDefault("work.admission_burst", 1)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch", 256)
	v.SetDefault("progress.max_wait", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("progress.log_records", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.base_dir", "data/transcripts")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "bridge")
	v.SetDefault("archive.max_records", 4096)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be > 0")
	}
	if c.Server.AttachTimeout < 0 {
		return fmt.Errorf("server.attach_timeout must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if _, err := bridge.ParsePolicy(c.Bridge.SubmitPolicy); err != nil {
		return fmt.Errorf("bridge.submit_policy: %w", err)
	}
	if c.Bridge.StageTimeout < 0 {
		return fmt.Errorf("bridge.stage_timeout must be >= 0")
	}
	if c.Work.StageA < 0 || c.Work.StageB < 0 || c.Work.Cleanup < 0 {
		return fmt.Errorf("work stage durations must be >= 0")
	}
	for _, label := range c.Work.Fail {
		if _, err := bridge.ParseStage(label); err != nil {
			return fmt.Errorf("work.fail: %w", err)
		}
	}
	if c.Work.AdmissionRPS < 0 {
		return fmt.Errorf("work.admission_rps must be >= 0")
	}
	if c.Progress.BufferSize < 0 || c.Progress.MaxBatch < 0 {
		return fmt.Errorf("progress buffer_size and max_batch must be >= 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	switch c.Archive.Backend {
	case "", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}
