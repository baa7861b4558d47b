package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	LogMaxBackups  int    `yaml:"log_max_backups"`
	LogMaxAgeDays  int    `yaml:"log_max_age_days"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	STT         STTConfig       `yaml:"stt"`
	Judge       JudgeConfig     `yaml:"judge"`
	SpeechLog   SpeechLogConfig `yaml:"speech_log"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// SpeechLogConfig controls where recognition attempts are recorded.
type SpeechLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	Grammar         bool   `yaml:"grammar"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	PartialEveryMS  int    `yaml:"partial_every_ms"`
	PublishInterim  bool   `yaml:"publish_interim"`
	UtteranceTTLMS  int    `yaml:"utterance_ttl_ms"`
	MockScript      string `yaml:"mock_script"`
}

// JudgeConfig tunes the service that turns transcripts into answer verdicts.
type JudgeConfig struct {
	Enabled        bool `yaml:"enabled"`
	EarlyAccept    bool `yaml:"early_accept"`
	ParseCacheSize int  `yaml:"parse_cache_size"`
	SessionTTLMS   int  `yaml:"session_ttl_ms"`
	RecordPartials bool `yaml:"record_partials"`
}

func Default() Config {
	return Config{
		RuntimeName: "flashy-voice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogMaxSizeMB:   32,
			LogMaxBackups:  3,
			LogMaxAgeDays:  14,
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		STT: STTConfig{
			Enabled:         false,
			Mode:            "mock",
			Grammar:         true,
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
			PartialEveryMS:  250,
			PublishInterim:  true,
			UtteranceTTLMS:  60 * 1000,
		},
		Judge: JudgeConfig{
			Enabled:        true,
			EarlyAccept:    true,
			ParseCacheSize: 512,
			SessionTTLMS:   5 * 60 * 1000,
			RecordPartials: true,
		},
		SpeechLog: SpeechLogConfig{
			Path:          "./data/speech.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies a .env file
// from the working directory and FLASHY_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is the normal case; variables already set win.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "FLASHY_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FLASHY_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FLASHY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FLASHY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FLASHY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "FLASHY_TELEMETRY_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FLASHY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FLASHY_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "FLASHY_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "FLASHY_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FLASHY_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "FLASHY_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "FLASHY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FLASHY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FLASHY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FLASHY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FLASHY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FLASHY_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.STT.Enabled, "FLASHY_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "FLASHY_STT_MODE")
	overrideString(&cfg.STT.Command, "FLASHY_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "FLASHY_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "FLASHY_STT_LANGUAGE")
	overrideBool(&cfg.STT.Grammar, "FLASHY_STT_GRAMMAR")
	overrideInt(&cfg.STT.SampleRate, "FLASHY_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "FLASHY_STT_CHANNELS")
	overrideInt(&cfg.STT.PartialEveryMS, "FLASHY_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "FLASHY_STT_PUBLISH_INTERIM")
	overrideInt(&cfg.STT.UtteranceTTLMS, "FLASHY_STT_UTTERANCE_TTL_MS")
	overrideString(&cfg.STT.MockScript, "FLASHY_STT_MOCK_SCRIPT")
	overrideBool(&cfg.Judge.Enabled, "FLASHY_JUDGE_ENABLED")
	overrideBool(&cfg.Judge.EarlyAccept, "FLASHY_JUDGE_EARLY_ACCEPT")
	overrideInt(&cfg.Judge.ParseCacheSize, "FLASHY_JUDGE_PARSE_CACHE_SIZE")
	overrideInt(&cfg.Judge.SessionTTLMS, "FLASHY_JUDGE_SESSION_TTL_MS")
	overrideBool(&cfg.Judge.RecordPartials, "FLASHY_JUDGE_RECORD_PARTIALS")
	overrideString(&cfg.SpeechLog.Path, "FLASHY_SPEECH_LOG_PATH")
	overrideString(&cfg.SpeechLog.RetentionMode, "FLASHY_SPEECH_LOG_RETENTION_MODE")
	overrideInt(&cfg.SpeechLog.RetentionDays, "FLASHY_SPEECH_LOG_RETENTION_DAYS")
	overrideInt(&cfg.SpeechLog.MaxSessions, "FLASHY_SPEECH_LOG_MAX_SESSIONS")
	overrideBool(&cfg.SpeechLog.VacuumOnStart, "FLASHY_SPEECH_LOG_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Telemetry.LogFile != "" && cfg.Telemetry.LogMaxSizeMB <= 0 {
		return errors.New("telemetry.log_max_size_mb must be positive when log_file is set")
	}
	if cfg.Bus.Embedded {
		// -1 asks the embedded server for a random free port.
		if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
			return errors.New("bus.port must be -1 or between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.SpeechLog.Path == "" && cfg.SpeechLog.RetentionMode != "ephemeral" {
		return errors.New("speech_log.path must not be empty")
	}
	switch cfg.SpeechLog.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("speech_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.SpeechLog.RetentionDays < 0 {
		return errors.New("speech_log.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.UtteranceTTLMS <= 0 {
			return errors.New("stt.utterance_ttl_ms must be positive")
		}
	}
	if cfg.Judge.Enabled {
		if cfg.Judge.ParseCacheSize < 0 {
			return errors.New("judge.parse_cache_size must be >= 0")
		}
		if cfg.Judge.SessionTTLMS <= 0 {
			return errors.New("judge.session_ttl_ms must be positive")
		}
	}
	return nil
}
