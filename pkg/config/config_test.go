package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLMProvider != "dify" {
		t.Errorf("Expected LLMProvider 'dify', got %q", cfg.LLMProvider)
	}

	if cfg.Dify.BaseURL != "http://localhost/v1" {
		t.Errorf("Expected base URL 'http://localhost/v1', got %q", cfg.Dify.BaseURL)
	}

	if cfg.Dify.User != "user" {
		t.Errorf("Expected user 'user', got %q", cfg.Dify.User)
	}

	if cfg.Dify.ResponseMode != ResponseModeBlocking {
		t.Errorf("Expected response mode %q, got %q", ResponseModeBlocking, cfg.Dify.ResponseMode)
	}

	if cfg.Output.ChatLogFile != "dify_chat_log.json" {
		t.Errorf("Expected chat log 'dify_chat_log.json', got %q", cfg.Output.ChatLogFile)
	}

	if cfg.Batch.QuestionsFile != "questions.txt" {
		t.Errorf("Expected questions file 'questions.txt', got %q", cfg.Batch.QuestionsFile)
	}
}

func TestLoad_CreateDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".dify_cli", "config.json")

	cfg, err := LoadWith(NewViper(), configPath)
	if err != nil {
		t.Fatalf("LoadWith() failed: %v", err)
	}

	if cfg.Dify.APITimeoutSeconds != 120 {
		t.Errorf("Expected default timeout 120, got %d", cfg.Dify.APITimeoutSeconds)
	}

	// File should exist now
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
}

func TestLoad_ExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	initialCfg := Default()
	initialCfg.Dify.User = "batch-runner"
	initialCfg.Dify.BaseURL = "https://dify.example.com/v1/"
	if err := Save(configPath, initialCfg); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	cfg, err := LoadWith(NewViper(), configPath)
	if err != nil {
		t.Fatalf("LoadWith() failed: %v", err)
	}

	if cfg.Dify.User != "batch-runner" {
		t.Errorf("Expected user 'batch-runner', got %q", cfg.Dify.User)
	}
	if cfg.Dify.BaseURL != "https://dify.example.com/v1" {
		t.Errorf("Expected trailing slash to be stripped, got %q", cfg.Dify.BaseURL)
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	raw := `{
  "dify": {
    "api_key": "file-key"
  }
}`
	if err := os.WriteFile(configPath, []byte(raw), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadWith(NewViper(), configPath)
	if err != nil {
		t.Fatalf("LoadWith() failed: %v", err)
	}

	if cfg.Dify.APIKey != "file-key" {
		t.Errorf("Expected API key from file, got %q", cfg.Dify.APIKey)
	}
	if cfg.Dify.BaseURL != "http://localhost/v1" {
		t.Errorf("Expected default base URL, got %q", cfg.Dify.BaseURL)
	}
	if cfg.Output.ChatLogFile != "dify_chat_log.json" {
		t.Errorf("Expected default chat log file, got %q", cfg.Output.ChatLogFile)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	t.Setenv("DIFY_API_KEY", "env-key")
	t.Setenv("DIFY_BASE_URL", "https://env.example.com/v1/")
	t.Setenv("DIFY_CLI_LOG_LEVEL", "debug")
	t.Setenv("DIFY_CLI_OUTPUT_DIR", "/tmp/answers")

	cfg, err := LoadWith(NewViper(), configPath)
	if err != nil {
		t.Fatalf("LoadWith() failed: %v", err)
	}

	if cfg.Dify.APIKey != "env-key" {
		t.Errorf("Expected API key from DIFY_API_KEY, got %q", cfg.Dify.APIKey)
	}
	if cfg.Dify.BaseURL != "https://env.example.com/v1" {
		t.Errorf("Expected base URL from DIFY_BASE_URL, got %q", cfg.Dify.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
	if cfg.Output.Dir != "/tmp/answers" {
		t.Errorf("Expected output dir '/tmp/answers', got %q", cfg.Output.Dir)
	}
}

func TestLoad_CorruptedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte("{invalid json}"), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadWith(NewViper(), configPath); err == nil {
		t.Fatal("Expected error for corrupted JSON")
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	content := "DIFY_API_KEY=dotenv-key\nDIFY_BASE_URL=https://dotenv.example.com/v1\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	// Pre-set value must win over the file
	t.Setenv("DIFY_BASE_URL", "https://preset.example.com/v1")
	t.Setenv("DIFY_API_KEY", "")
	os.Unsetenv("DIFY_API_KEY")

	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}

	if got := os.Getenv("DIFY_API_KEY"); got != "dotenv-key" {
		t.Errorf("Expected DIFY_API_KEY from .env, got %q", got)
	}
	if got := os.Getenv("DIFY_BASE_URL"); got != "https://preset.example.com/v1" {
		t.Errorf("Expected preset DIFY_BASE_URL to be kept, got %q", got)
	}
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Expected missing .env to be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid dify",
			mutate: func(c *Config) { c.Dify.APIKey = "key" },
		},
		{
			name:    "missing dify key",
			mutate:  func(c *Config) {},
			wantErr: "API key is required",
		},
		{
			name: "bad response mode",
			mutate: func(c *Config) {
				c.Dify.APIKey = "key"
				c.Dify.ResponseMode = "push"
			},
			wantErr: "response_mode",
		},
		{
			name: "non-positive timeout",
			mutate: func(c *Config) {
				c.Dify.APIKey = "key"
				c.Dify.APITimeoutSeconds = 0
			},
			wantErr: "api_timeout_seconds",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLMProvider = "bogus" },
			wantErr: "unsupported LLM provider",
		},
		{
			name: "openai requires key",
			mutate: func(c *Config) {
				c.LLMProvider = ProviderOpenAI
			},
			wantErr: "OpenAI API key",
		},
		{
			name: "google temperature range",
			mutate: func(c *Config) {
				c.LLMProvider = ProviderGoogle
				c.Providers.Google.APIKey = "key"
				c.Providers.Google.Temperature = 3
			},
			wantErr: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestChatLogPath(t *testing.T) {
	cfg := Default()
	cfg.Output.Dir = "/data/out"
	if got := cfg.ChatLogPath(); got != filepath.Join("/data/out", "dify_chat_log.json") {
		t.Errorf("Expected log under output dir, got %q", got)
	}

	cfg.Output.ChatLogFile = "/var/log/chat.json"
	if got := cfg.ChatLogPath(); got != "/var/log/chat.json" {
		t.Errorf("Expected absolute chat log path to be kept, got %q", got)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".dify_cli", "config.json")) {
		t.Errorf("Expected path ending in .dify_cli/config.json, got %q", path)
	}
}
