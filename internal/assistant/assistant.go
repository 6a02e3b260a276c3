// Package assistant talks to an OpenAI-compatible chat completions endpoint
// (Groq, DeepSeek, OpenAI, Ollama) on behalf of the conversation, keeping the
// session history in step with every successful exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/history"
)

// History is the slice of the history store the client needs.
type History interface {
	Tail(ctx context.Context, sessionID string, limit int) ([]history.Turn, error)
	AppendExchange(ctx context.Context, sessionID, question, answer string) error
}

// Client sends one user utterance plus recent history to the model.
type Client struct {
	api     *openai.Client
	history History
	counter TokenCounter
	cfg     config.AssistantConfig
}

// New creates a client from config. counter may be nil, in which case
// max_context_tokens is not enforced.
func New(cfg config.AssistantConfig, h History, counter TokenCounter) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:     openai.NewClientWithConfig(oc),
		history: h,
		counter: counter,
		cfg:     cfg,
	}
}

// Chat asks the model to answer userText in the context of the session's
// recent turns. On success the user turn and the answer are appended to the
// session, in that order; on failure nothing is recorded.
func (c *Client) Chat(ctx context.Context, sessionID, userText string) (string, error) {
	tail, err := c.history.Tail(ctx, sessionID, c.cfg.HistoryTail)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	messages := c.buildMessages(tail, userText)

	slog.Debug("chat request",
		"session", sessionID,
		"model", c.cfg.Model,
		"messages", len(messages),
		"text_length", len(userText),
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      false,
		Temperature: float32(c.cfg.Temperature),
	})
	if err != nil {
		return "", classify(err)
	}

	var answer string
	if len(resp.Choices) > 0 {
		answer = resp.Choices[0].Message.Content
	}

	if err := c.history.AppendExchange(ctx, sessionID, userText, answer); err != nil {
		return "", fmt.Errorf("recording exchange: %w", err)
	}

	slog.Debug("chat response", "session", sessionID, "text_length", len(answer))
	return answer, nil
}

// buildMessages lays out [system] + tail + [user], dropping the oldest tail
// turns while the request exceeds the token budget.
func (c *Client) buildMessages(tail []history.Turn, userText string) []openai.ChatCompletionMessage {
	system := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt}
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText}

	past := make([]openai.ChatCompletionMessage, 0, len(tail))
	for _, t := range tail {
		past = append(past, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	if c.counter != nil && c.cfg.MaxContextTokens > 0 {
		for len(past) > 0 && countMessages(c.counter, system, past, user) > c.cfg.MaxContextTokens {
			past = past[1:]
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(past)+2)
	messages = append(messages, system)
	messages = append(messages, past...)
	return append(messages, user)
}

// HTTPError is a chat endpoint failure classified by status code.
type HTTPError struct {
	Status int
	Detail string // server-supplied error.message, empty if the body was not JSON
	Hint   string
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d", e.Status)
	if e.Detail != "" {
		b.WriteString(" • ")
		b.WriteString(e.Detail)
	}
	if e.Hint != "" {
		b.WriteString(" • ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// hintFor returns the user-facing hint for a status code, if any.
func hintFor(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "API key is empty, invalid or has no access."
	case status == http.StatusTooManyRequests:
		return "Request limit exhausted."
	case status >= 500 && status < 600:
		return "Server unavailable, try again later."
	}
	return ""
}

// statusInMessageRe matches go-openai's formatted error for non-JSON error
// responses.
var statusInMessageRe = regexp.MustCompile(`status code: (\d{3})`)

// classify turns go-openai failures that carry an HTTP status into HTTPError.
// Transport and context errors are returned wrapped.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &HTTPError{
			Status: apiErr.HTTPStatusCode,
			Detail: apiErr.Message,
			Hint:   hintFor(apiErr.HTTPStatusCode),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &HTTPError{
			Status: reqErr.HTTPStatusCode,
			Hint:   hintFor(reqErr.HTTPStatusCode),
		}
	}

	if m := statusInMessageRe.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return &HTTPError{Status: status, Hint: hintFor(status)}
	}

	return fmt.Errorf("chat request: %w", err)
}
