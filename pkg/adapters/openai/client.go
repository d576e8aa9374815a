// Package openai implements ports.Decider against an OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/router"
	"github.com/aretw0/deckhand/pkg/domain"
)

const (
	// DefaultBaseURL targets the hosted OpenAI API. Point it elsewhere for
	// compatible gateways.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel is the chat model used when the config names none.
	DefaultModel = "gpt-4.1"

	maxErrorBodyBytes  = 2048
	defaultHTTPTimeout = 120 * time.Second
)

var (
	// ErrUnauthorized is returned on 401/403 responses.
	ErrUnauthorized = errors.New("openai: invalid or missing API key")

	// ErrRateLimited is returned on 429 responses.
	ErrRateLimited = errors.New("openai: rate limited")

	// ErrUnavailable is returned on 5xx responses.
	ErrUnavailable = errors.New("openai: service unavailable")
)

// Config holds the connection settings for the chat API.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client talks to the chat completions API and maps its answers onto the
// domain Decision type. Tool schemas are advertised only when the session
// has a document path; without one the model just chats.
type Client struct {
	cfg   Config
	httpc *http.Client
	log   *slog.Logger
	specs []router.Spec
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, e.g. for custom transports.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New builds a decider client. The API key is required; base URL and model
// fall back to the defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrUnauthorized)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	specs, err := router.Specs()
	if err != nil {
		return nil, fmt.Errorf("load tool specs: %w", err)
	}

	c := &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: defaultHTTPTimeout},
		log:   logging.NewNop(),
		specs: specs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Decide sends the conversation and returns the model's next step.
func (c *Client) Decide(ctx context.Context, state *domain.State) (domain.Decision, error) {
	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(state),
		Temperature: 0,
	}
	if state.DocumentPath != "" {
		payload.Tools = c.tools()
	}

	msg, err := c.sendChatCompletion(ctx, payload)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Decision{
		Message:   extractContent(msg.Content),
		ToolCalls: c.toDomainCalls(msg.ToolCalls),
	}
	if decision.Message == "" && len(decision.ToolCalls) == 0 {
		return domain.Decision{}, errors.New("openai: empty response")
	}

	c.log.Debug("decision received",
		"model", c.cfg.Model,
		"tool_calls", len(decision.ToolCalls),
		"has_message", decision.Message != "",
	)
	return decision, nil
}

func (c *Client) sendChatCompletion(ctx context.Context, payload chatCompletionRequest) (chatResponseMessage, error) {
	var zero chatResponseMessage

	body, err := json.Marshal(payload)
	if err != nil {
		return zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return zero, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return zero, ErrRateLimited
	case resp.StatusCode >= 500:
		return zero, ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return zero, fmt.Errorf("openai error: %s - %s", resp.Status, string(errorBody))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return zero, err
	}
	if len(completion.Choices) == 0 {
		return zero, errors.New("openai: empty response")
	}
	return completion.Choices[0].Message, nil
}

func (c *Client) tools() []chatToolSpec {
	specs := make([]chatToolSpec, 0, len(c.specs))
	for _, s := range c.specs {
		specs = append(specs, chatToolSpec{
			Type: "function",
			Function: chatToolDetails{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return specs
}

func (c *Client) toDomainCalls(calls []chatToolCallResp) []domain.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]domain.ToolCall, 0, len(calls))
	for idx, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			continue
		}
		callID := strings.TrimSpace(call.ID)
		if callID == "" {
			callID = fmt.Sprintf("call-%s-%d", name, idx)
		}

		args := map[string]any{}
		raw := normalizeArguments(call.Function.Arguments)
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			// The router rejects the empty args with a message the model
			// can correct from; aborting the turn here would not.
			c.log.Debug("discarding unparseable tool arguments", "tool", name, "err", err)
			args = map[string]any{}
		}

		result = append(result, domain.ToolCall{
			ID:     callID,
			Action: domain.ActionKind(name),
			Args:   args,
		})
	}
	return result
}

type chatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []chatMessage  `json:"messages"`
	Temperature float64        `json:"temperature"`
	Tools       []chatToolSpec `json:"tools,omitempty"`
}

type chatToolSpec struct {
	Type     string          `json:"type"`
	Function chatToolDetails `json:"function"`
}

type chatToolDetails struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	Name       string            `json:"name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCallReq `json:"tool_calls,omitempty"`
}

type chatToolCallReq struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function chatToolFunctionReq `json:"function"`
}

type chatToolFunctionReq struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatResponseMessage `json:"message"`
}

type chatResponseMessage struct {
	Content   json.RawMessage    `json:"content"`
	ToolCalls []chatToolCallResp `json:"tool_calls"`
}

type chatToolCallResp struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function chatToolFunctionRaw `json:"function"`
}

type chatToolFunctionRaw struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type contentBlock struct {
	Text string `json:"text"`
}

// buildMessages converts the session history to the wire shape, prefixed
// by the system prompt. Tool turns are tagged with the function name of
// the call they answer, recovered from earlier assistant turns.
func buildMessages(state *domain.State) []chatMessage {
	result := make([]chatMessage, 0, len(state.Turns)+1)
	result = append(result, chatMessage{Role: "system", Content: systemPrompt})

	toolNameByID := make(map[string]string)
	for _, turn := range state.Turns {
		switch turn.Role {
		case domain.RoleTool:
			entry := chatMessage{
				Role:       "tool",
				Content:    turn.Content,
				ToolCallID: turn.ToolCallID,
			}
			if name := toolNameByID[turn.ToolCallID]; name != "" {
				entry.Name = name
			}
			result = append(result, entry)
		default:
			entry := chatMessage{Role: string(turn.Role), Content: turn.Content}
			if len(turn.ToolCalls) > 0 {
				entry.ToolCalls = make([]chatToolCallReq, 0, len(turn.ToolCalls))
				for idx, call := range turn.ToolCalls {
					callID := strings.TrimSpace(call.ID)
					if callID == "" {
						callID = fmt.Sprintf("call-%s-%d", call.Action, idx)
					}
					entry.ToolCalls = append(entry.ToolCalls, chatToolCallReq{
						ID:   callID,
						Type: "function",
						Function: chatToolFunctionReq{
							Name:      call.Action.String(),
							Arguments: marshalArgs(call.Args),
						},
					})
					toolNameByID[callID] = call.Action.String()
				}
			}
			result = append(result, entry)
		}
	}
	return result
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// extractContent accepts both plain-string content and block arrays, which
// some compatible gateways return.
func extractContent(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var builder strings.Builder
		for _, block := range blocks {
			builder.WriteString(block.Text)
		}
		return builder.String()
	}
	return ""
}

// normalizeArguments turns absent, null or string-encoded argument payloads
// into a JSON object literal.
func normalizeArguments(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "{}"
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return "{}"
		}
		return asString
	}
	return trimmed
}
