package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/logging"

	"google.golang.org/genai"
)

const (
	googleDefaultModel   = "gemini-2.5-flash"
	googleDefaultTimeout = 60
)

func init() {
	ai.RegisterProvider(ai.ProviderInfo{
		Type:        ai.ProviderGoogle,
		Name:        "Google",
		Description: "Google AI (Gemini) generate content (single-turn)",
		RequiresKey: true,
	}, NewGoogleProvider)
}

type googleModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// GoogleProvider answers questions through the Gemini API.
type GoogleProvider struct {
	models             googleModelsClient
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
	defaultTimeout     time.Duration
}

// NewGoogleProvider creates a new Google provider from config.
func NewGoogleProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	providerCfg := cfg.Config.Providers.Google

	apiKey := strings.TrimSpace(providerCfg.APIKey)
	if apiKey == "" {
		slog.Debug("google_provider_missing_key")
		return nil, fmt.Errorf("google api_key is required")
	}

	model := strings.TrimSpace(providerCfg.Model)
	if model == "" {
		model = googleDefaultModel
	}

	timeoutSeconds := providerCfg.APITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = googleDefaultTimeout
	}

	client, err := newGoogleClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	slog.Debug("google_provider_ready",
		"model", model,
		"api_key", logging.MaskKey(apiKey),
		"timeout_seconds", timeoutSeconds,
	)
	return &GoogleProvider{
		models:             client.Models,
		defaultModel:       model,
		defaultTemperature: providerCfg.Temperature,
		defaultMaxTokens:   providerCfg.MaxTokens,
		defaultTimeout:     time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// Send generates a complete answer.
func (p *GoogleProvider) Send(ctx context.Context, q ai.Query) (ai.Reply, error) {
	contents, cfg, err := p.buildRequest(q)
	if err != nil {
		return ai.Reply{}, err
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.models.GenerateContent(callCtx, p.defaultModel, contents, cfg)
	if err != nil {
		return ai.Reply{}, err
	}

	answer := extractVisibleText(resp)
	native, err := json.Marshal(resp)
	if err != nil {
		native = nil
	}

	slog.Info("google_generate_done", "model", p.defaultModel, "answer_length", len(answer))
	return ai.Reply{
		Answer:    answer,
		MessageID: resp.ResponseID,
		Raw:       wrapRaw(ai.ProviderGoogle, p.defaultModel, answer, native),
	}, nil
}

// Stream generates an answer incrementally.
func (p *GoogleProvider) Stream(ctx context.Context, q ai.Query) (ai.Stream, error) {
	contents, cfg, err := p.buildRequest(q)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := p.withTimeout(ctx)
	stream := p.models.GenerateContentStream(callCtx, p.defaultModel, contents, cfg)
	slog.Info("google_stream_start", "model", p.defaultModel)
	return newGoogleStream(stream, cancel, p.defaultModel), nil
}

func (p *GoogleProvider) buildRequest(q ai.Query) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if p.defaultModel == "" {
		return nil, nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(q.Message) == "" {
		return nil, nil, fmt.Errorf("message is required")
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: q.Message}},
		},
	}

	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	}
	if p.defaultTemperature > 0 {
		config.Temperature = genai.Ptr(float32(p.defaultTemperature))
	}
	if p.defaultMaxTokens > 0 {
		config.MaxOutputTokens = int32(p.defaultMaxTokens)
	}

	return contents, config, nil
}

func (p *GoogleProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline || p.defaultTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, p.defaultTimeout)
}

type googleStreamEvent struct {
	delta string
	id    string
	err   error
	done  bool
}

type googleStream struct {
	events  chan googleStreamEvent
	model   string
	id      string
	current string
	output  strings.Builder
	err     error
	done    bool
	cancel  context.CancelFunc
}

func newGoogleStream(stream iter.Seq2[*genai.GenerateContentResponse, error], cancel context.CancelFunc, model string) *googleStream {
	s := &googleStream{
		events: make(chan googleStreamEvent, 32),
		cancel: cancel,
		model:  model,
	}
	go func() {
		defer close(s.events)
		seen := ""
		for resp, err := range stream {
			if err != nil {
				s.events <- googleStreamEvent{err: err}
				return
			}
			fullText := extractVisibleText(resp)
			if fullText == "" {
				continue
			}

			// Some models resend the whole answer on every chunk.
			delta := fullText
			if strings.HasPrefix(fullText, seen) {
				delta = fullText[len(seen):]
				seen = fullText
			} else {
				seen += delta
			}

			if delta != "" {
				s.events <- googleStreamEvent{delta: delta, id: resp.ResponseID}
			}
		}
		s.events <- googleStreamEvent{done: true}
	}()
	return s
}

func (s *googleStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for ev := range s.events {
		if ev.err != nil {
			s.err = ev.err
			s.done = true
			return false
		}
		if ev.done {
			s.done = true
			return false
		}
		if ev.delta == "" {
			continue
		}
		if ev.id != "" {
			s.id = ev.id
		}
		s.current = ev.delta
		s.output.WriteString(ev.delta)
		return true
	}

	s.done = true
	return false
}

func (s *googleStream) Delta() string {
	return s.current
}

func (s *googleStream) Reply() ai.Reply {
	answer := s.output.String()
	return ai.Reply{
		Answer:    answer,
		MessageID: s.id,
		Raw:       wrapRaw(ai.ProviderGoogle, s.model, answer, nil),
	}
}

func (s *googleStream) Err() error {
	return s.err
}

func (s *googleStream) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done {
		return nil
	}
	// Drain so the producer goroutine can exit.
	for range s.events {
	}
	s.done = true
	return nil
}

// Ensure interface compliance
var _ ai.Provider = (*GoogleProvider)(nil)

func extractVisibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
