package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/config"
	"dify_cli/pkg/logging"
	"dify_cli/pkg/version"

	"github.com/tmaxmax/go-sse"
)

const (
	difyDefaultBaseURL = "http://localhost/v1"
	difyDefaultTimeout = 120
	difyDefaultUser    = "user"
	difyMaxEventSize   = 1 << 20
)

func init() {
	ai.RegisterProvider(ai.ProviderInfo{
		Type:        ai.ProviderDify,
		Name:        "Dify",
		Description: "Dify chat application API (chat-messages)",
		RequiresKey: true,
	}, NewDifyProvider)
}

// DifyProvider talks to a Dify chat application over its REST API.
type DifyProvider struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client

	// streamClient has no overall deadline; only the response headers are
	// bounded so long answers are not cut off.
	streamClient *http.Client
}

// APIError is the error body returned by Dify, also used for stream "error" events.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	status := e.StatusCode
	if status == 0 {
		status = e.Status
	}
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("dify API error (status %d, %s): %s", status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("dify API error (status %d): %s", status, e.Message)
	default:
		return fmt.Sprintf("dify API request failed with status %d: %s", status, e.Body)
	}
}

type chatMessageRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID *string        `json:"conversation_id"`
	User           string         `json:"user"`
}

// chatMessageEvent covers both the blocking response and streamed chunks.
type chatMessageEvent struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	ID             string          `json:"id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Mode           string          `json:"mode"`
	Answer         string          `json:"answer"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      int64           `json:"created_at"`

	// error events
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e chatMessageEvent) messageID() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	return e.ID
}

type feedbackRequest struct {
	Rating *string `json:"rating"`
	User   string  `json:"user"`
}

type stopRequest struct {
	User string `json:"user"`
}

// NewDifyProvider creates a Dify provider from config.
func NewDifyProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	return newDifyProviderWithHTTPClient(cfg.Config.Dify, nil)
}

func newDifyProviderWithHTTPClient(cfg config.DifyConfig, httpClient *http.Client) (*DifyProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		slog.Debug("dify_provider_missing_key")
		return nil, fmt.Errorf("dify api_key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = difyDefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid dify base_url %q: %w", baseURL, err)
	}

	timeout := cfg.APITimeoutSeconds
	if timeout <= 0 {
		timeout = difyDefaultTimeout
	}
	streamClient := httpClient
	if httpClient == nil {
		d := time.Duration(timeout) * time.Second
		httpClient = &http.Client{Timeout: d}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = d
		streamClient = &http.Client{Transport: transport}
	}

	slog.Debug("dify_provider_ready",
		"base_url", baseURL,
		"api_key", logging.MaskKey(apiKey),
		"timeout_seconds", timeout,
	)

	return &DifyProvider{
		baseURL:      baseURL,
		apiKey:       apiKey,
		userAgent:    "dify-cli/" + version.Version,
		httpClient:   httpClient,
		streamClient: streamClient,
	}, nil
}

// Send posts a blocking chat message and returns the decoded reply.
func (p *DifyProvider) Send(ctx context.Context, q ai.Query) (ai.Reply, error) {
	resp, err := p.post(ctx, "/chat-messages", p.chatPayload(q, config.ResponseModeBlocking), "application/json")
	if err != nil {
		return ai.Reply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("dify_read_response_error", "error", err)
		return ai.Reply{}, fmt.Errorf("failed to read response: %w", err)
	}
	logBody("dify_response_body", body)

	var event chatMessageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("dify_unmarshal_response_error", "error", err)
		return ai.Reply{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	reply := ai.Reply{
		Answer:         ai.ExtractAnswer(body),
		ConversationID: event.ConversationID,
		MessageID:      event.messageID(),
		TaskID:         event.TaskID,
		Raw:            json.RawMessage(body),
	}

	slog.Info("dify_message_done",
		"message_id", reply.MessageID,
		"conversation_id", reply.ConversationID,
		"answer_length", len(reply.Answer),
	)
	return reply, nil
}

// Stream posts a streaming chat message and returns an incremental reader over
// the server-sent events.
func (p *DifyProvider) Stream(ctx context.Context, q ai.Query) (ai.Stream, error) {
	resp, err := p.do(ctx, p.streamClient, "/chat-messages", p.chatPayload(q, config.ResponseModeStreaming), "text/event-stream")
	if err != nil {
		return nil, err
	}

	slog.Info("dify_stream_start", "content_type", resp.Header.Get("Content-Type"))
	return newDifyStream(resp.Body), nil
}

// Feedback rates a message. RatingNone clears an earlier rating.
func (p *DifyProvider) Feedback(ctx context.Context, messageID string, rating ai.Rating, user string) error {
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("message id is required")
	}

	payload := feedbackRequest{User: userOrDefault(user)}
	if rating != ai.RatingNone {
		r := string(rating)
		payload.Rating = &r
	}

	resp, err := p.post(ctx, "/messages/"+url.PathEscape(messageID)+"/feedbacks", payload, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Info("dify_feedback_sent", "message_id", messageID, "rating", string(rating))
	return nil
}

// Stop aborts a streaming generation identified by its task id.
func (p *DifyProvider) Stop(ctx context.Context, taskID string, user string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is required")
	}

	resp, err := p.post(ctx, "/chat-messages/"+url.PathEscape(taskID)+"/stop", stopRequest{User: userOrDefault(user)}, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Info("dify_generation_stopped", "task_id", taskID)
	return nil
}

func (p *DifyProvider) chatPayload(q ai.Query, mode string) chatMessageRequest {
	payload := chatMessageRequest{
		Inputs:       map[string]any{},
		Query:        q.Message,
		ResponseMode: mode,
		User:         userOrDefault(q.User),
	}
	if id := strings.TrimSpace(q.ConversationID); id != "" {
		payload.ConversationID = &id
	}
	return payload
}

// post sends a JSON body and returns the response once the status is known to
// be successful. The caller owns the response body.
func (p *DifyProvider) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	return p.do(ctx, p.httpClient, path, payload, accept)
}

func (p *DifyProvider) do(ctx context.Context, client *http.Client, path string, payload any, accept string) (*http.Response, error) {
	endpoint := p.baseURL + path

	jsonData, err := json.Marshal(payload)
	if err != nil {
		slog.Error("dify_marshal_request_error", "error", err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	logBody("dify_request_body", jsonData)

	slog.Debug("dify_request",
		"url", endpoint,
		"api_key", logging.MaskKey(p.apiKey),
		"request_size", len(jsonData),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		slog.Error("dify_create_request_error", "error", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := client.Do(httpReq)
	if err != nil {
		slog.Error("dify_send_request_error", "url", endpoint, "error", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	slog.Debug("dify_response",
		"status_code", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		slog.Error("dify_error_status",
			"status_code", resp.StatusCode,
			"response_preview", preview,
		)

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}

	return resp, nil
}

func logBody(msg string, body []byte) {
	logger := slog.Default()
	if !logger.Enabled(context.Background(), logging.LevelTrace) {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		logger.Log(context.Background(), logging.LevelTrace, msg, "json", pretty.String())
		return
	}
	logger.Log(context.Background(), logging.LevelTrace, msg, "raw", string(body))
}

func userOrDefault(user string) string {
	if strings.TrimSpace(user) == "" {
		return difyDefaultUser
	}
	return user
}

// streamReply is the raw record synthesized when a streamed answer completes.
type streamReply struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Mode           string          `json:"mode"`
	Answer         string          `json:"answer"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

type difyStream struct {
	body io.ReadCloser
	next func() (sse.Event, error, bool)
	stop func()

	delta  string
	answer strings.Builder
	reply  streamReply
	err    error
	done   bool
}

func newDifyStream(body io.ReadCloser) *difyStream {
	var events iter.Seq2[sse.Event, error] = sse.Read(body, &sse.ReadConfig{MaxEventSize: difyMaxEventSize})
	next, stop := iter.Pull2(events)
	return &difyStream{
		body:  body,
		next:  next,
		stop:  stop,
		reply: streamReply{Event: "message", Mode: "chat"},
	}
}

func (s *difyStream) Next() bool {
	if s.done {
		return false
	}

	for {
		ev, err, ok := s.next()
		if !ok {
			s.finish(nil)
			return false
		}
		if err != nil {
			s.finish(fmt.Errorf("failed to read stream: %w", err))
			return false
		}
		if strings.TrimSpace(ev.Data) == "" {
			continue
		}

		var chunk chatMessageEvent
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			s.finish(fmt.Errorf("failed to decode stream event: %w", err))
			return false
		}
		s.track(chunk)

		switch chunk.Event {
		case "message", "agent_message":
			if chunk.Answer == "" {
				continue
			}
			s.delta = chunk.Answer
			s.answer.WriteString(chunk.Answer)
			return true
		case "message_replace":
			s.answer.Reset()
			s.answer.WriteString(chunk.Answer)
		case "message_end":
			if len(chunk.Metadata) > 0 {
				s.reply.Metadata = chunk.Metadata
			}
			s.finish(nil)
			return false
		case "error":
			s.finish(&APIError{Status: chunk.Status, Code: chunk.Code, Message: chunk.Message})
			return false
		default:
			// ping, agent_thought, message_file, tts_*, workflow/node events
		}
	}
}

func (s *difyStream) track(chunk chatMessageEvent) {
	if chunk.TaskID != "" {
		s.reply.TaskID = chunk.TaskID
	}
	if id := chunk.messageID(); id != "" {
		s.reply.MessageID = id
	}
	if chunk.ConversationID != "" {
		s.reply.ConversationID = chunk.ConversationID
	}
	if chunk.CreatedAt != 0 && s.reply.CreatedAt == 0 {
		s.reply.CreatedAt = chunk.CreatedAt
	}
}

func (s *difyStream) finish(err error) {
	s.done = true
	s.delta = ""
	s.err = err
	s.reply.Answer = s.answer.String()
	if err != nil {
		slog.Error("dify_stream_error", "task_id", s.reply.TaskID, "error", err)
		return
	}
	slog.Info("dify_stream_done",
		"message_id", s.reply.MessageID,
		"conversation_id", s.reply.ConversationID,
		"answer_length", len(s.reply.Answer),
	)
}

func (s *difyStream) Delta() string {
	return s.delta
}

func (s *difyStream) Reply() ai.Reply {
	reply := s.reply
	reply.Answer = s.answer.String()

	raw, err := json.Marshal(reply)
	if err != nil {
		raw = nil
	}
	return ai.Reply{
		Answer:         reply.Answer,
		ConversationID: reply.ConversationID,
		MessageID:      reply.MessageID,
		TaskID:         reply.TaskID,
		Raw:            raw,
	}
}

func (s *difyStream) Err() error {
	return s.err
}

func (s *difyStream) Close() error {
	s.stop()
	s.done = true
	return s.body.Close()
}

// Ensure interface compliance
var (
	_ ai.Provider       = (*DifyProvider)(nil)
	_ ai.FeedbackSender = (*DifyProvider)(nil)
	_ ai.Stopper        = (*DifyProvider)(nil)
)
