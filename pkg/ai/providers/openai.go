package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/config"
	"dify_cli/pkg/logging"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

const (
	openAIDefaultAPIURL  = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
	openAIDefaultTimeout = 30
)

func init() {
	ai.RegisterProvider(ai.ProviderInfo{
		Type:        ai.ProviderOpenAI,
		Name:        "OpenAI",
		Description: "OpenAI chat completions (single-turn)",
		RequiresKey: true,
	}, NewOpenAIProvider)
}

// OpenAIProvider answers questions through the OpenAI chat completions API.
type OpenAIProvider struct {
	client             openai.Client
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
}

// NewOpenAIProvider creates a new OpenAI provider from config.
func NewOpenAIProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	return newOpenAIProviderWithHTTPClient(cfg.Config.Providers.OpenAI, nil)
}

func newOpenAIProviderWithHTTPClient(providerCfg config.OpenAIConfig, httpClient *http.Client) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(providerCfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api_key is required")
	}

	apiURL := providerCfg.APIURL
	if apiURL == "" {
		apiURL = openAIDefaultAPIURL
	}

	model := providerCfg.Model
	if model == "" {
		model = openAIDefaultModel
	}

	timeout := providerCfg.APITimeoutSeconds
	if timeout <= 0 {
		timeout = openAIDefaultTimeout
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(apiURL),
		option.WithHTTPClient(httpClient),
	)

	slog.Debug("openai_provider_ready",
		"api_url", apiURL,
		"api_key", logging.MaskKey(apiKey),
		"model", model,
	)

	return &OpenAIProvider{
		client:             client,
		defaultModel:       model,
		defaultTemperature: providerCfg.Temperature,
		defaultMaxTokens:   providerCfg.MaxTokens,
	}, nil
}

// Send sends a non-streaming chat completion request.
func (p *OpenAIProvider) Send(ctx context.Context, q ai.Query) (ai.Reply, error) {
	params, err := p.buildChatParams(q)
	if err != nil {
		return ai.Reply{}, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ai.Reply{}, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	slog.Info("openai_completion_done", "model", resp.Model, "answer_length", len(content))
	return ai.Reply{
		Answer:    content,
		MessageID: resp.ID,
		Raw:       wrapRaw(ai.ProviderOpenAI, resp.Model, content, json.RawMessage(resp.RawJSON())),
	}, nil
}

// Stream sends a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, q ai.Query) (ai.Stream, error) {
	params, err := p.buildChatParams(q)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, err
	}

	slog.Info("openai_stream_start", "model", string(params.Model))
	return &openAIStream{stream: stream, model: string(params.Model)}, nil
}

func (p *OpenAIProvider) buildChatParams(q ai.Query) (openai.ChatCompletionNewParams, error) {
	if strings.TrimSpace(p.defaultModel) == "" {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(q.Message) == "" {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.defaultModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(q.Message),
		},
	}
	if q.User != "" {
		params.User = openai.String(q.User)
	}
	if p.defaultTemperature > 0 {
		params.Temperature = openai.Float(p.defaultTemperature)
	}
	if p.defaultMaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.defaultMaxTokens))
	}

	return params, nil
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	model  string
	id     string
	output strings.Builder
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if chunk.ID != "" {
			s.id = chunk.ID
		}
		if chunk.Model != "" {
			s.model = chunk.Model
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.output.WriteString(chunk.Choices[0].Delta.Content)
		return true
	}
	return false
}

func (s *openAIStream) Delta() string {
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

func (s *openAIStream) Reply() ai.Reply {
	answer := s.output.String()
	return ai.Reply{
		Answer:    answer,
		MessageID: s.id,
		Raw:       wrapRaw(ai.ProviderOpenAI, s.model, answer, nil),
	}
}

func (s *openAIStream) Err() error {
	return s.stream.Err()
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// providerRaw is the log record for providers whose native response has no
// top-level answer field.
type providerRaw struct {
	Answer   string          `json:"answer"`
	Provider string          `json:"provider"`
	Model    string          `json:"model,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

func wrapRaw(provider ai.ProviderType, model, answer string, native json.RawMessage) json.RawMessage {
	if len(native) > 0 && !json.Valid(native) {
		native = nil
	}
	raw, err := json.Marshal(providerRaw{
		Answer:   answer,
		Provider: string(provider),
		Model:    model,
		Response: native,
	})
	if err != nil {
		slog.Warn("provider_raw_marshal_error", "provider", string(provider), "error", err)
		return nil
	}
	return raw
}

// Ensure interface compliance
var _ ai.Provider = (*OpenAIProvider)(nil)
