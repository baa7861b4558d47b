package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if !cfg.Judge.Enabled || !cfg.Judge.EarlyAccept {
		t.Fatalf("expected judge enabled with early accept by default")
	}
	if cfg.SpeechLog.RetentionMode != "persistent" {
		t.Fatalf("unexpected speech log retention %q", cfg.SpeechLog.RetentionMode)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashy.yaml")
	data := []byte(`runtime_name: classroom
judge:
  early_accept: false
  parse_cache_size: 64
stt:
  enabled: true
  mode: exec
  command: "vosk-transcribe --json"
speech_log:
  path: /tmp/speech.db
  retention_mode: session
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "classroom" {
		t.Fatalf("expected runtime name from yaml, got %q", cfg.RuntimeName)
	}
	if cfg.Judge.EarlyAccept {
		t.Fatal("expected early accept disabled")
	}
	if cfg.Judge.ParseCacheSize != 64 {
		t.Fatalf("expected cache size 64, got %d", cfg.Judge.ParseCacheSize)
	}
	if cfg.Judge.SessionTTLMS != Default().Judge.SessionTTLMS {
		t.Fatal("expected untouched fields to keep defaults")
	}
	if cfg.STT.Command != "vosk-transcribe --json" {
		t.Fatalf("unexpected stt command %q", cfg.STT.Command)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLASHY_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("FLASHY_BUS_EMBEDDED", "false")
	t.Setenv("FLASHY_BUS_USERNAME", "alice")
	t.Setenv("FLASHY_BUS_PASSWORD", "secret")
	t.Setenv("FLASHY_BUS_TLS_INSECURE", "true")
	t.Setenv("FLASHY_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("FLASHY_TELEMETRY_LOG_LEVEL", "debug")
	t.Setenv("FLASHY_JUDGE_EARLY_ACCEPT", "false")
	t.Setenv("FLASHY_JUDGE_PARSE_CACHE_SIZE", "0")
	t.Setenv("FLASHY_SPEECH_LOG_PATH", "./tmp.db")
	t.Setenv("FLASHY_SPEECH_LOG_RETENTION_MODE", "session")
	t.Setenv("FLASHY_SPEECH_LOG_RETENTION_DAYS", "7")
	t.Setenv("FLASHY_SPEECH_LOG_MAX_SESSIONS", "123")
	t.Setenv("FLASHY_SPEECH_LOG_VACUUM_ON_START", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://two:4222" {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Embedded {
		t.Fatal("expected embedded bus disabled")
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Telemetry.LogLevel != "debug" {
		t.Fatalf("expected log level override")
	}
	if cfg.Judge.EarlyAccept {
		t.Fatalf("expected early accept override")
	}
	if cfg.Judge.ParseCacheSize != 0 {
		t.Fatalf("expected parse cache disabled")
	}
	if cfg.SpeechLog.Path != "./tmp.db" {
		t.Fatalf("expected speech log path override")
	}
	if cfg.SpeechLog.RetentionMode != "session" {
		t.Fatalf("expected speech log retention mode override")
	}
	if cfg.SpeechLog.RetentionDays != 7 {
		t.Fatalf("expected speech log retention days override")
	}
	if cfg.SpeechLog.MaxSessions != 123 {
		t.Fatalf("expected speech log max sessions override")
	}
	if !cfg.SpeechLog.VacuumOnStart {
		t.Fatalf("expected speech log vacuum flag override")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "loud" }},
		{"bad retention", func(c *Config) { c.SpeechLog.RetentionMode = "forever" }},
		{"exec without command", func(c *Config) {
			c.STT.Enabled = true
			c.STT.Mode = "exec"
		}},
		{"unknown stt mode", func(c *Config) {
			c.STT.Enabled = true
			c.STT.Mode = "cloud"
		}},
		{"no servers", func(c *Config) {
			c.Bus.Embedded = false
			c.Bus.Servers = nil
		}},
		{"zero ttl", func(c *Config) { c.Judge.SessionTTLMS = 0 }},
		{"zero utterance ttl", func(c *Config) {
			c.STT.Enabled = true
			c.STT.UtteranceTTLMS = 0
		}},
		{"negative embedded port", func(c *Config) { c.Bus.Port = -2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsRandomEmbeddedPort(t *testing.T) {
	t.Setenv("FLASHY_BUS_PORT", "-1")
	t.Setenv("FLASHY_STT_UTTERANCE_TTL_MS", "1500")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Port != -1 {
		t.Fatalf("expected port -1, got %d", cfg.Bus.Port)
	}
	if cfg.STT.UtteranceTTLMS != 1500 {
		t.Fatalf("expected utterance ttl override, got %d", cfg.STT.UtteranceTTLMS)
	}
}
