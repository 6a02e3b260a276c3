// Package config handles loading and validating the yasna configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSystemPrompt is sent ahead of every chat request unless overridden.
const DefaultSystemPrompt = "You are a friendly voice assistant for elderly people. " +
	"Answer simply and briefly. ANSWER ONLY IN RUSSIAN."

// Config is the root configuration for the assistant.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Transports   TransportsConfig   `mapstructure:"transports"`
	Assistant    AssistantConfig    `mapstructure:"assistant"`
	History      HistoryConfig      `mapstructure:"history"`
	Recognition  RecognitionConfig  `mapstructure:"recognition"`
	TTS          TTSConfig          `mapstructure:"tts"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	UI           UIConfig           `mapstructure:"ui"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings. A zero port disables
// the standalone health server.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the development transports.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP control API.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AssistantConfig configures the OpenAI-compatible chat endpoint.
type AssistantConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	HistoryTail       int           `mapstructure:"history_tail"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	MaxContextTokens  int           `mapstructure:"max_context_tokens"` // 0 disables the budget
	TokenizerEncoding string        `mapstructure:"tokenizer_encoding"` // tiktoken encoding name
	Timeout           time.Duration `mapstructure:"timeout"`
}

// HistoryConfig selects the persistence backend.
type HistoryConfig struct {
	Backend       string `mapstructure:"backend"` // "sqlite" or "bolt"
	Path          string `mapstructure:"path"`
	MaxPerSession int    `mapstructure:"max_per_session"`
}

// RecognitionConfig configures capture and transcription.
type RecognitionConfig struct {
	// RecorderCommand must write raw signed 16-bit little-endian mono PCM at
	// 16 kHz to stdout and exit when the utterance ends.
	RecorderCommand string        `mapstructure:"recorder_command"`
	Transcriber     string        `mapstructure:"transcriber"` // "openai" or "asr" (ahmetoner/whisper-asr-webservice)
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	VADFilter       bool          `mapstructure:"vad_filter"`
	MaxUtterance    time.Duration `mapstructure:"max_utterance"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend       string      `mapstructure:"backend"` // "piper" or "silent"
	Piper         PiperConfig `mapstructure:"piper"`
	PlayerCommand string      `mapstructure:"player_command"` // reads a WAV file on stdin
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances set Endpoints, which maps ISO-639-1 codes to
// Wyoming TCP endpoints. Endpoints takes precedence and Endpoint is the
// fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// ConversationConfig holds the orchestrator defaults.
type ConversationConfig struct {
	Locale       string `mapstructure:"locale"` // BCP-47, e.g. "ru-RU"
	AutoContinue bool   `mapstructure:"auto_continue"`
	Session      string `mapstructure:"session"`
	PartialLimit int    `mapstructure:"partial_limit"`
}

// UIConfig toggles the terminal conversation screen.
type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`     // debug, info, warn, error
	Format   string `mapstructure:"format"`    // json, text
	Dir      string `mapstructure:"dir"`       // log file directory while the screen owns the terminal
	MaxFiles int    `mapstructure:"max_files"` // log files kept in Dir
}

// Load reads the configuration from file, environment variables, and defaults.
// A .env file in the working directory is loaded into the environment first.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./yasna.yaml, ./configs/yasna.yaml, /etc/yasna/yasna.yaml.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("yasna")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/yasna")
	}

	// Environment variables: YASNA_ASSISTANT_MODEL, YASNA_TTS_BACKEND, etc.
	v.SetEnvPrefix("YASNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; env vars and defaults are sufficient.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GROQ_API_KEY}").
	cfg.Assistant.APIKey = resolveEnvRef(cfg.Assistant.APIKey)
	cfg.Recognition.APIKey = resolveEnvRef(cfg.Recognition.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", false)
	v.SetDefault("transports.http.port", 8080)

	v.SetDefault("assistant.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("assistant.api_key", "${GROQ_API_KEY}")
	v.SetDefault("assistant.model", "llama-3.1-8b-instant")
	v.SetDefault("assistant.temperature", 0.3)
	v.SetDefault("assistant.history_tail", 8)
	v.SetDefault("assistant.system_prompt", DefaultSystemPrompt)
	v.SetDefault("assistant.max_context_tokens", 0)
	v.SetDefault("assistant.tokenizer_encoding", "cl100k_base")
	v.SetDefault("assistant.timeout", "60s")

	v.SetDefault("history.backend", "sqlite")
	v.SetDefault("history.path", "data/history.db")
	v.SetDefault("history.max_per_session", 200)

	v.SetDefault("recognition.recorder_command",
		"rec -q -t raw -r 16000 -e signed-integer -b 16 -c 1 - silence 1 0.1 1% 1 1.5 1%")
	v.SetDefault("recognition.transcriber", "openai")
	v.SetDefault("recognition.endpoint", "http://localhost:8000/v1")
	v.SetDefault("recognition.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("recognition.model", "whisper-1")
	v.SetDefault("recognition.vad_filter", false)
	v.SetDefault("recognition.max_utterance", "30s")

	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.player_command", "aplay -q -")

	v.SetDefault("conversation.locale", "ru-RU")
	v.SetDefault("conversation.auto_continue", true)
	v.SetDefault("conversation.session", "default")
	v.SetDefault("conversation.partial_limit", 200)

	v.SetDefault("ui.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.max_files", 10)
}

// Validate checks the settings the rest of the program cannot recover from.
func (c *Config) Validate() error {
	return validation.Errors{
		"assistant": validation.ValidateStruct(&c.Assistant,
			validation.Field(&c.Assistant.BaseURL, validation.Required),
			validation.Field(&c.Assistant.Model, validation.Required),
			validation.Field(&c.Assistant.Temperature, validation.Min(0.0), validation.Max(2.0)),
			validation.Field(&c.Assistant.HistoryTail, validation.Min(0)),
			validation.Field(&c.Assistant.MaxContextTokens, validation.Min(0)),
		),
		"history": validation.ValidateStruct(&c.History,
			validation.Field(&c.History.Backend, validation.Required, validation.In("sqlite", "bolt")),
			validation.Field(&c.History.Path, validation.Required),
			validation.Field(&c.History.MaxPerSession, validation.Min(1)),
		),
		"recognition": validation.ValidateStruct(&c.Recognition,
			validation.Field(&c.Recognition.RecorderCommand, validation.Required),
			validation.Field(&c.Recognition.Transcriber, validation.Required, validation.In("openai", "asr")),
			validation.Field(&c.Recognition.Endpoint, validation.Required),
			validation.Field(&c.Recognition.MaxUtterance, validation.Min(time.Second)),
		),
		"tts": validation.ValidateStruct(&c.TTS,
			validation.Field(&c.TTS.Backend, validation.Required, validation.In("piper", "silent")),
			validation.Field(&c.TTS.PlayerCommand, validation.When(c.TTS.Backend == "piper", validation.Required)),
		),
		"conversation": validation.ValidateStruct(&c.Conversation,
			validation.Field(&c.Conversation.Locale, validation.Required),
			validation.Field(&c.Conversation.Session, validation.Required),
			validation.Field(&c.Conversation.PartialLimit, validation.Min(1)),
		),
	}.Filter()
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var
// value. An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger to write to w.
func SetupLogging(cfg LoggingConfig, w io.Writer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
