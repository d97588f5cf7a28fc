package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/stagebridge/internal/bridge"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.MaxSessions != 1024 || cfg.Server.AttachTimeout != 5*time.Minute {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Bridge.Policy() != bridge.PolicyReject {
		t.Fatalf("expected reject policy by default, got %s", cfg.Bridge.Policy())
	}
	if cfg.Work.StageA != 200*time.Millisecond || cfg.Progress.MaxWait != 250*time.Millisecond {
		t.Fatalf("expected duration defaults to decode, got %+v %+v", cfg.Work, cfg.Progress)
	}
	if cfg.Archive.Backend != "" || cfg.DB.DSN != "" {
		t.Fatalf("expected optional backends disabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  max_sessions: 8
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
bridge:
  submit_policy: block
  stage_timeout: 3s
work:
  stage_a: 1s
  stage_b: 2s
  cleanup: 10ms
  fail: ["b"]
  admission_rps: 2.5
  admission_burst: 3
progress:
  max_batch: 16
  log_records: true
pubsub:
  project_id: proj
  topic_name: bridge-sessions
archive:
  backend: gcs
  gcs_bucket: transcripts
  prefix: prod
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.MaxSessions != 8 {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Bridge.Policy() != bridge.PolicyBlock || cfg.Bridge.StageTimeout != 3*time.Second {
		t.Fatalf("expected bridge overrides, got %+v", cfg.Bridge)
	}
	if cfg.Work.StageB != 2*time.Second || len(cfg.Work.Fail) != 1 || cfg.Work.Fail[0] != "b" {
		t.Fatalf("expected work overrides, got %+v", cfg.Work)
	}
	if cfg.Work.AdmissionRPS != 2.5 || cfg.Work.AdmissionBurst != 3 {
		t.Fatalf("expected admission overrides, got %+v", cfg.Work)
	}
	if cfg.Progress.MaxBatch != 16 || !cfg.Progress.LogRecords || cfg.Progress.BufferSize != 1024 {
		t.Fatalf("expected progress overrides merged with defaults, got %+v", cfg.Progress)
	}
	if cfg.Archive.Backend != "gcs" || cfg.Archive.GCSBucket != "transcripts" {
		t.Fatalf("expected archive overrides, got %+v", cfg.Archive)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_SERVER_PORT", "7070")
	t.Setenv("BRIDGE_BRIDGE_SUBMIT_POLICY", "block")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Bridge.Policy() != bridge.PolicyBlock {
		t.Fatalf("expected env policy block, got %s", cfg.Bridge.Policy())
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, MaxSessions: 10},
		Bridge: BridgeConfig{SubmitPolicy: "reject"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "no sessions", mutate: func(c *Config) { c.Server.MaxSessions = 0 }, want: "server.max_sessions"},
		{name: "negative attach timeout", mutate: func(c *Config) { c.Server.AttachTimeout = -time.Second }, want: "server.attach_timeout"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown policy", mutate: func(c *Config) { c.Bridge.SubmitPolicy = "drop" }, want: "bridge.submit_policy"},
		{name: "negative timeout", mutate: func(c *Config) { c.Bridge.StageTimeout = -time.Second }, want: "bridge.stage_timeout"},
		{name: "negative duration", mutate: func(c *Config) { c.Work.Cleanup = -1 }, want: "work stage durations"},
		{name: "unknown fail stage", mutate: func(c *Config) { c.Work.Fail = []string{"z"} }, want: "work.fail"},
		{name: "negative rps", mutate: func(c *Config) { c.Work.AdmissionRPS = -1 }, want: "work.admission_rps"},
		{name: "negative batch", mutate: func(c *Config) { c.Progress.MaxBatch = -1 }, want: "progress"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
		{name: "local without dir", mutate: func(c *Config) { c.Archive.Backend = "local" }, want: "archive.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = "gcs" }, want: "archive.gcs_bucket"},
		{name: "unknown backend", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
