package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/chatlog"
	"dify_cli/pkg/client"
	"dify_cli/pkg/config"
	"dify_cli/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configPath string
	apiKey     string
	stream     bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	chat := &chatOptions{}
	root := &cobra.Command{
		Use:   "dify_cli",
		Short: "Chat with a Dify app or batch-answer a list of questions",
		Long: `dify_cli talks to the Dify chat-messages API.

Run without a subcommand to start an interactive chat. Use "batch" to answer
every question in a text file and save the answers as CSV.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, chat)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.GetConfigPath(), "config file")
	flags.StringVar(&a.apiKey, "api-key", "", "API key for the selected provider")
	flags.String("base-url", "", "Dify API base URL")
	flags.String("provider", "", "LLM provider (dify, openai, google)")
	flags.String("user", "", "end-user identifier sent with each request")
	flags.String("output-dir", "", "directory for the CSV and the chat log")
	flags.String("fallback-dir", "", "directory used when the output directory is not writable")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.stream, "stream", false, "stream answers as they are generated")

	_ = a.v.BindPFlag("dify.base_url", flags.Lookup("base-url"))
	_ = a.v.BindPFlag("llm_provider", flags.Lookup("provider"))
	_ = a.v.BindPFlag("dify.user", flags.Lookup("user"))
	_ = a.v.BindPFlag("output.dir", flags.Lookup("output-dir"))
	_ = a.v.BindPFlag("output.fallback_dir", flags.Lookup("fallback-dir"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	addChatFlags(root, chat)

	root.AddCommand(
		newChatCmd(a),
		newBatchCmd(a),
		newLogsCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration with flags taking precedence and starts logging.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadWith(a.v, a.configPath)
	if err != nil {
		return err
	}

	if a.stream {
		cfg.Dify.ResponseMode = config.ResponseModeStreaming
	}
	if key := strings.TrimSpace(a.apiKey); key != "" {
		a.setAPIKey(&cfg, key)
	}

	if _, err := logging.Init(cfg); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: file logging disabled: %v\n", err)
	}
	slog.Info("cli_start",
		"command", cmd.Name(),
		"provider", cfg.LLMProvider,
		"config", a.configPath,
		"response_mode", cfg.Dify.ResponseMode,
	)

	a.cfg = cfg
	return nil
}

func (a *app) setAPIKey(cfg *config.Config, key string) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		cfg.Providers.OpenAI.APIKey = key
	case config.ProviderGoogle:
		cfg.Providers.Google.APIKey = key
	default:
		cfg.Dify.APIKey = key
	}
}

func (a *app) chatLog(warn io.Writer) *chatlog.Log {
	return chatlog.New(a.cfg.ChatLogPath(), a.cfg.Output.FallbackDir, warn)
}

// newClient validates the configuration and builds the client for the
// selected provider.
func (a *app) newClient(warn io.Writer) (*client.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := ai.GetProviderFromConfig(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return client.New(provider, a.chatLog(warn), a.cfg.Dify.User), nil
}
