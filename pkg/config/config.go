package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration struct for the application.
// It holds settings for logging, the API, storage, scoring, alerting,
// and the background ingest sources.
// Tags are used by Viper to map YAML keys to struct fields.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	APIPort  string `mapstructure:"api_port"`

	Store    StoreConfig    `mapstructure:"store"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

// StoreConfig points at the on-disk event database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// OpenAIConfig holds the scoring backend settings. Prompts are optional,
// the analyzer falls back to its built-in defaults when empty.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	AnalysisPrompt string `mapstructure:"analysis_prompt"`
}

// WatchConfig drives the periodic analyze-and-alert loop.
type WatchConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Interval       string  `mapstructure:"interval"`
	WindowHours    int     `mapstructure:"window_hours"`
	AlertThreshold float64 `mapstructure:"alert_threshold"`
}

// TelegramConfig configures the alert sink.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// TTSConfig configures the spoken alert rendition.
type TTSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Model      string `mapstructure:"model"`
	Voice      string `mapstructure:"voice"`
	OutputPath string `mapstructure:"output_path"`
}

// SourcesConfig enables the background ingest sources.
type SourcesConfig struct {
	HostSensor HostSensorConfig `mapstructure:"host_sensor"`
	Spool      SpoolConfig      `mapstructure:"spool"`
}

// HostSensorConfig configures the local host telemetry sweep.
type HostSensorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

// SpoolConfig configures the drop-directory ingest watcher.
type SpoolConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoadConfig reads the configuration from a YAML file (e.g., config.yaml) and
// environment variables. It uses Viper for robust configuration management,
// allowing for defaults and environment variable overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")                 // Search in current directory
	v.AddConfigPath("/etc/omnistatus/")  // Search in /etc/omnistatus/

	// Set default values
	v.SetDefault("log_level", "info")
	v.SetDefault("api_port", "8000")
	v.SetDefault("store.path", "omnistatus.db")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.interval", "10m")
	v.SetDefault("watch.window_hours", 1)
	v.SetDefault("watch.alert_threshold", 0.7)
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.output_path", "alert.mp3")
	v.SetDefault("sources.host_sensor.enabled", false)
	v.SetDefault("sources.host_sensor.interval", "5m")
	v.SetDefault("sources.spool.enabled", false)

	// Read environment variables
	v.SetEnvPrefix("OMNISTATUS")                       // Look for OMNISTATUS_ prefix
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores for nested keys
	v.AutomaticEnv()                                   // Automatically bind environment variables to config keys

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables.")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations that would fail at runtime. An enabled
// feature with missing credentials is a startup error, not a silent no-op.
func (c *Config) Validate() error {
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram alerts enabled but bot_token or chat_id is missing")
	}
	if c.TTS.Enabled && c.OpenAI.APIKey == "" {
		return fmt.Errorf("tts enabled but openai.api_key is missing")
	}
	if c.Watch.Enabled && c.OpenAI.APIKey == "" {
		return fmt.Errorf("watch loop enabled but openai.api_key is missing")
	}
	if c.Sources.Spool.Enabled && c.Sources.Spool.Dir == "" {
		return fmt.Errorf("spool source enabled but dir is missing")
	}
	if c.Watch.WindowHours < 1 || c.Watch.WindowHours > 168 {
		return fmt.Errorf("watch.window_hours must be between 1 and 168, got %d", c.Watch.WindowHours)
	}
	return nil
}
