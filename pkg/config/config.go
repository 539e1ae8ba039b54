package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dify_cli/pkg/savefile"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderDify   = "dify"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"

	ResponseModeBlocking  = "blocking"
	ResponseModeStreaming = "streaming"

	EnvPrefix = "DIFY_CLI"
)

// Config represents the application configuration
type Config struct {
	LLMProvider string          `json:"llm_provider" mapstructure:"llm_provider"`
	Dify        DifyConfig      `json:"dify" mapstructure:"dify"`
	Providers   ProvidersConfig `json:"providers" mapstructure:"providers"`
	Output      OutputConfig    `json:"output" mapstructure:"output"`
	Batch       BatchConfig     `json:"batch" mapstructure:"batch"`
	Chat        ChatConfig      `json:"chat" mapstructure:"chat"`
	LogLevel    string          `json:"log_level" mapstructure:"log_level"`
	LogFile     string          `json:"log_file" mapstructure:"log_file"`
	LogFormat   string          `json:"log_format" mapstructure:"log_format"`
}

// DifyConfig holds the Dify API configuration
type DifyConfig struct {
	APIKey            string `json:"api_key" mapstructure:"api_key"`
	BaseURL           string `json:"base_url" mapstructure:"base_url"`
	User              string `json:"user" mapstructure:"user"`
	ResponseMode      string `json:"response_mode" mapstructure:"response_mode"`
	APITimeoutSeconds int    `json:"api_timeout_seconds" mapstructure:"api_timeout_seconds"`
}

// ProvidersConfig holds settings for the non-Dify backends
type ProvidersConfig struct {
	OpenAI OpenAIConfig `json:"openai" mapstructure:"openai"`
	Google GoogleConfig `json:"google" mapstructure:"google"`
}

// OpenAIConfig holds the OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey            string  `json:"api_key" mapstructure:"api_key"`
	APIURL            string  `json:"api_url" mapstructure:"api_url"`
	Model             string  `json:"model" mapstructure:"model"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `json:"max_tokens" mapstructure:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds" mapstructure:"api_timeout_seconds"`
}

// GoogleConfig holds the Google AI (Gemini) configuration
type GoogleConfig struct {
	APIKey            string  `json:"api_key" mapstructure:"api_key"`
	Model             string  `json:"model" mapstructure:"model"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `json:"max_tokens" mapstructure:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds" mapstructure:"api_timeout_seconds"`
}

// OutputConfig controls where answers and the chat log are written
type OutputConfig struct {
	Dir         string `json:"dir" mapstructure:"dir"`
	FallbackDir string `json:"fallback_dir" mapstructure:"fallback_dir"`
	ChatLogFile string `json:"chat_log_file" mapstructure:"chat_log_file"`
}

// BatchConfig holds batch mode settings
type BatchConfig struct {
	QuestionsFile string `json:"questions_file" mapstructure:"questions_file"`
}

// ChatConfig holds interactive chat settings
type ChatConfig struct {
	Markdown         bool `json:"markdown" mapstructure:"markdown"`
	KeepConversation bool `json:"keep_conversation" mapstructure:"keep_conversation"`
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		LLMProvider: ProviderDify,
		Dify: DifyConfig{
			APIKey:            "",
			BaseURL:           "http://localhost/v1",
			User:              "user",
			ResponseMode:      ResponseModeBlocking,
			APITimeoutSeconds: 120,
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIURL:            "https://api.openai.com/v1",
				Model:             "gpt-4o",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
			Google: GoogleConfig{
				Model:             "gemini-2.5-flash",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
		},
		Output: OutputConfig{
			Dir:         ".",
			FallbackDir: savefile.DefaultFallbackDir(),
			ChatLogFile: "dify_chat_log.json",
		},
		Batch: BatchConfig{
			QuestionsFile: "questions.txt",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// NewViper returns a viper instance with defaults and environment bindings.
// Flags can be bound to it before calling LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names kept compatible with existing .env files
	_ = v.BindEnv("dify.api_key", "DIFY_API_KEY", EnvPrefix+"_DIFY_API_KEY")
	_ = v.BindEnv("dify.base_url", "DIFY_BASE_URL", EnvPrefix+"_DIFY_BASE_URL")
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY", EnvPrefix+"_PROVIDERS_OPENAI_API_KEY")
	_ = v.BindEnv("providers.google.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY", EnvPrefix+"_PROVIDERS_GOOGLE_API_KEY")

	return v
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("llm_provider", cfg.LLMProvider)

	v.SetDefault("dify.api_key", cfg.Dify.APIKey)
	v.SetDefault("dify.base_url", cfg.Dify.BaseURL)
	v.SetDefault("dify.user", cfg.Dify.User)
	v.SetDefault("dify.response_mode", cfg.Dify.ResponseMode)
	v.SetDefault("dify.api_timeout_seconds", cfg.Dify.APITimeoutSeconds)

	v.SetDefault("providers.openai.api_key", cfg.Providers.OpenAI.APIKey)
	v.SetDefault("providers.openai.api_url", cfg.Providers.OpenAI.APIURL)
	v.SetDefault("providers.openai.model", cfg.Providers.OpenAI.Model)
	v.SetDefault("providers.openai.temperature", cfg.Providers.OpenAI.Temperature)
	v.SetDefault("providers.openai.max_tokens", cfg.Providers.OpenAI.MaxTokens)
	v.SetDefault("providers.openai.api_timeout_seconds", cfg.Providers.OpenAI.APITimeoutSeconds)

	v.SetDefault("providers.google.api_key", cfg.Providers.Google.APIKey)
	v.SetDefault("providers.google.model", cfg.Providers.Google.Model)
	v.SetDefault("providers.google.temperature", cfg.Providers.Google.Temperature)
	v.SetDefault("providers.google.max_tokens", cfg.Providers.Google.MaxTokens)
	v.SetDefault("providers.google.api_timeout_seconds", cfg.Providers.Google.APITimeoutSeconds)

	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.fallback_dir", cfg.Output.FallbackDir)
	v.SetDefault("output.chat_log_file", cfg.Output.ChatLogFile)

	v.SetDefault("batch.questions_file", cfg.Batch.QuestionsFile)

	v.SetDefault("chat.markdown", cfg.Chat.Markdown)
	v.SetDefault("chat.keep_conversation", cfg.Chat.KeepConversation)

	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_format", cfg.LogFormat)
}

// LoadDotEnv loads variables from .env files without overriding the
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadWith loads configuration from configPath using a prepared viper
// instance, so that bound command-line flags take precedence over file and
// environment. A missing file is created with default values.
func LoadWith(v *viper.Viper, configPath string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	// Ensure directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := Save(configPath, Default()); err != nil {
			return Config{}, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = ProviderDify
	}
	c.Dify.APIKey = strings.TrimSpace(c.Dify.APIKey)
	c.Dify.BaseURL = strings.TrimRight(strings.TrimSpace(c.Dify.BaseURL), "/")
	c.Dify.ResponseMode = strings.ToLower(strings.TrimSpace(c.Dify.ResponseMode))
	if strings.TrimSpace(c.Dify.User) == "" {
		c.Dify.User = "user"
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = "."
	}
	if strings.TrimSpace(c.Output.ChatLogFile) == "" {
		c.Output.ChatLogFile = Default().Output.ChatLogFile
	}
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderDify:
		if c.Dify.APIKey == "" {
			return fmt.Errorf("Dify API key is required (set DIFY_API_KEY in .env or the environment)")
		}
		if c.Dify.BaseURL == "" {
			return fmt.Errorf("dify base_url is required")
		}
		if c.Dify.ResponseMode != ResponseModeBlocking && c.Dify.ResponseMode != ResponseModeStreaming {
			return fmt.Errorf("response_mode must be %q or %q, got: %q", ResponseModeBlocking, ResponseModeStreaming, c.Dify.ResponseMode)
		}
		if c.Dify.APITimeoutSeconds <= 0 {
			return fmt.Errorf("api_timeout_seconds must be positive, got: %d", c.Dify.APITimeoutSeconds)
		}
	case ProviderOpenAI:
		p := c.Providers.OpenAI
		if strings.TrimSpace(p.APIKey) == "" {
			return fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY)")
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("temperature must be between 0 and 2, got: %f", p.Temperature)
		}
	case ProviderGoogle:
		p := c.Providers.Google
		if strings.TrimSpace(p.APIKey) == "" {
			return fmt.Errorf("Google API key is required (set GEMINI_API_KEY)")
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("temperature must be between 0 and 2, got: %f", p.Temperature)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}

	return nil
}

// HasAPIKey reports whether the active provider has a key configured.
func (c Config) HasAPIKey() bool {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return strings.TrimSpace(c.Providers.OpenAI.APIKey) != ""
	case ProviderGoogle:
		return strings.TrimSpace(c.Providers.Google.APIKey) != ""
	default:
		return c.Dify.APIKey != ""
	}
}

// ChatLogPath returns the chat log location, resolved against the output dir.
func (c Config) ChatLogPath() string {
	if filepath.IsAbs(c.Output.ChatLogFile) {
		return c.Output.ChatLogFile
	}
	return filepath.Join(c.Output.Dir, c.Output.ChatLogFile)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".dify_cli/config.json"
	}
	return filepath.Join(homeDir, ".dify_cli", "config.json")
}
