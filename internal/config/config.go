package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type BackendConfig struct {
	Mode      string `yaml:"mode"` // mock, ollama, exec
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
	MaxUnits  int    `yaml:"max_units"`
}

type DecoderConfig struct {
	Mode    string `yaml:"mode"` // passthrough, exec, mock
	Command string `yaml:"command"`
}

type SynthesisConfig struct {
	DefaultVoice      string        `yaml:"default_voice"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	RepetitionPenalty float64       `yaml:"repetition_penalty"`
	SampleRate        int           `yaml:"sample_rate"`
	Channels          int           `yaml:"channels"`
	ChunkDurationMS   int           `yaml:"chunk_duration_ms"`
	ChunkBuffer       int           `yaml:"chunk_buffer"`
	Workers           int           `yaml:"workers"`
	QueueTimeoutMS    int           `yaml:"queue_timeout_ms"`
	Decoder           DecoderConfig `yaml:"decoder"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Backend     BackendConfig   `yaml:"backend"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Bus         BusConfig       `yaml:"bus"`
}

func Default() Config {
	return Config{
		ServiceName: "orpheusd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 5000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Backend: BackendConfig{
			Mode:      "mock",
			Endpoint:  "http://localhost:11434",
			Model:     "orpheus",
			TimeoutMS: 120000,
			MaxUnits:  4096,
		},
		Synthesis: SynthesisConfig{
			DefaultVoice:      "tara",
			Temperature:       0.6,
			TopP:              0.9,
			RepetitionPenalty: 1.1,
			SampleRate:        24000,
			Channels:          1,
			ChunkDurationMS:   200,
			ChunkBuffer:       8,
			Workers:           1,
			QueueTimeoutMS:    30000,
			Decoder: DecoderConfig{
				Mode: "passthrough",
			},
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

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

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "ORPHEUS_SERVICE_NAME")
	overrideString(&cfg.Environment, "ORPHEUS_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ORPHEUS_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ORPHEUS_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ORPHEUS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ORPHEUS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ORPHEUS_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ORPHEUS_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Backend.Mode, "ORPHEUS_BACKEND_MODE")
	overrideString(&cfg.Backend.Endpoint, "ORPHEUS_BACKEND_ENDPOINT")
	overrideString(&cfg.Backend.Model, "ORPHEUS_MODEL_NAME")
	overrideString(&cfg.Backend.Command, "ORPHEUS_BACKEND_COMMAND")
	overrideInt(&cfg.Backend.TimeoutMS, "ORPHEUS_BACKEND_TIMEOUT_MS")
	overrideInt(&cfg.Backend.MaxUnits, "ORPHEUS_BACKEND_MAX_UNITS")
	overrideString(&cfg.Synthesis.DefaultVoice, "ORPHEUS_DEFAULT_VOICE")
	overrideFloat(&cfg.Synthesis.Temperature, "ORPHEUS_TEMPERATURE")
	overrideFloat(&cfg.Synthesis.TopP, "ORPHEUS_TOP_P")
	overrideFloat(&cfg.Synthesis.RepetitionPenalty, "ORPHEUS_REPEAT_PENALTY")
	overrideInt(&cfg.Synthesis.SampleRate, "ORPHEUS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "ORPHEUS_CHANNELS")
	overrideInt(&cfg.Synthesis.ChunkDurationMS, "ORPHEUS_CHUNK_DURATION_MS")
	overrideInt(&cfg.Synthesis.ChunkBuffer, "ORPHEUS_CHUNK_BUFFER")
	overrideInt(&cfg.Synthesis.Workers, "ORPHEUS_WORKERS")
	overrideInt(&cfg.Synthesis.QueueTimeoutMS, "ORPHEUS_QUEUE_TIMEOUT_MS")
	overrideString(&cfg.Synthesis.Decoder.Mode, "ORPHEUS_DECODER_MODE")
	overrideString(&cfg.Synthesis.Decoder.Command, "ORPHEUS_DECODER_COMMAND")
	overrideBool(&cfg.Bus.Enabled, "ORPHEUS_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "ORPHEUS_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ORPHEUS_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ORPHEUS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ORPHEUS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ORPHEUS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ORPHEUS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ORPHEUS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ORPHEUS_BUS_CONNECT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
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
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Backend.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("backend.mode must be one of mock|ollama|exec")
	}
	if cfg.Backend.Mode == "ollama" && cfg.Backend.Endpoint == "" {
		return errors.New("backend.endpoint must be set when mode=ollama")
	}
	if cfg.Backend.Mode == "exec" && cfg.Backend.Command == "" {
		return errors.New("backend.command must be set when mode=exec")
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return errors.New("backend.timeout_ms must be positive")
	}
	if cfg.Backend.MaxUnits <= 0 {
		return errors.New("backend.max_units must be positive")
	}
	if cfg.Synthesis.DefaultVoice == "" {
		return errors.New("synthesis.default_voice must not be empty")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Synthesis.Channels <= 0 {
		return errors.New("synthesis.channels must be positive")
	}
	if cfg.Synthesis.ChunkDurationMS <= 0 {
		return errors.New("synthesis.chunk_duration_ms must be positive")
	}
	if cfg.Synthesis.ChunkBuffer <= 0 {
		return errors.New("synthesis.chunk_buffer must be >= 1")
	}
	if cfg.Synthesis.Workers <= 0 {
		return errors.New("synthesis.workers must be >= 1")
	}
	switch cfg.Synthesis.Decoder.Mode {
	case "passthrough", "exec", "mock":
	default:
		return errors.New("synthesis.decoder.mode must be one of passthrough|exec|mock")
	}
	if cfg.Synthesis.Decoder.Mode == "exec" && cfg.Synthesis.Decoder.Command == "" {
		return errors.New("synthesis.decoder.command must be set when mode=exec")
	}
	if cfg.Backend.Mode == "ollama" && cfg.Synthesis.Decoder.Mode == "passthrough" {
		return errors.New("backend.mode=ollama emits tokens, not PCM; synthesis.decoder.mode must be exec or mock")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
