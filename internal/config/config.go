package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	defaultClassifierTimeoutSeconds = 30
	defaultClassifierMaxAttempts    = 3
	defaultClassifierBackoffMillis  = 500
	defaultSignalWindow             = 10
)

type Config struct {
	LLMProvider              string `yaml:"llm_provider"`
	LLMModel                 string `yaml:"llm_model"`
	AnthropicAPIKey          string `yaml:"anthropic_api_key"`
	OpenAIAPIKey             string `yaml:"openai_api_key"`
	ClassifierTimeoutSeconds int    `yaml:"classifier_timeout_seconds"`
	ClassifierMaxAttempts    int    `yaml:"classifier_max_attempts"`
	ClassifierBackoffMillis  int    `yaml:"classifier_backoff_ms"`

	DBPath                     string `yaml:"db_path"`
	SignalWindow               int    `yaml:"signal_window"`
	UpgradeKeywordsPath        string `yaml:"upgrade_keywords_path"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	DigestSchedule   string `yaml:"digest_schedule"`
	SlackBotToken    string `yaml:"slack_bot_token"`
	SlackChannelID   string `yaml:"slack_channel_id"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.ClassifierTimeoutSeconds, "CLASSIFIER_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.ClassifierMaxAttempts, "CLASSIFIER_MAX_ATTEMPTS")
	envOverrideInt(&cfg.ClassifierBackoffMillis, "CLASSIFIER_BACKOFF_MS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.SignalWindow, "SIGNAL_WINDOW")
	envOverride(&cfg.UpgradeKeywordsPath, "UPGRADE_KEYWORDS_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	envOverride(&cfg.TelegramChatID, "TELEGRAM_CHAT_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.ClassifierTimeoutSeconds == 0 {
		cfg.ClassifierTimeoutSeconds = defaultClassifierTimeoutSeconds
	}
	if cfg.ClassifierMaxAttempts == 0 {
		cfg.ClassifierMaxAttempts = defaultClassifierMaxAttempts
	}
	if cfg.ClassifierBackoffMillis == 0 {
		cfg.ClassifierBackoffMillis = defaultClassifierBackoffMillis
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./clientpulse.db"
	}
	if cfg.SignalWindow == 0 {
		cfg.SignalWindow = defaultSignalWindow
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.validate(); err != nil {
		log.Fatalf("%v", err)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	if c.ClassifierTimeoutSeconds < 1 {
		return fmt.Errorf("invalid classifier_timeout_seconds '%d': must be >= 1", c.ClassifierTimeoutSeconds)
	}
	if c.ClassifierMaxAttempts < 1 {
		return fmt.Errorf("invalid classifier_max_attempts '%d': must be >= 1", c.ClassifierMaxAttempts)
	}
	if c.ClassifierBackoffMillis < 0 {
		return fmt.Errorf("invalid classifier_backoff_ms '%d': must be >= 0", c.ClassifierBackoffMillis)
	}
	if c.SignalWindow < 1 {
		return fmt.Errorf("invalid signal_window '%d': must be >= 1", c.SignalWindow)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if strings.TrimSpace(c.DigestSchedule) != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.DigestSchedule); err != nil {
			return fmt.Errorf("invalid digest_schedule '%s': %v", c.DigestSchedule, err)
		}
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("telegram_bot_token and telegram_chat_id must be set together")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level '%s': must be debug, info, warn or error", c.LogLevel)
	}
	return nil
}

// ClassifierReady reports whether the configured provider has credentials.
// Commands that never classify (health, summary, upgrade) do not need them.
func (c Config) ClassifierReady() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutSeconds) * time.Second
}

func (c Config) ClassifierBackoff() time.Duration {
	return time.Duration(c.ClassifierBackoffMillis) * time.Millisecond
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) TelegramConfigured() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
