package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/history"
)

type fakeHistory struct {
	mu        sync.Mutex
	tail      []history.Turn
	appended  []history.Turn
	tailErr   error
	appendErr error
}

func (f *fakeHistory) Tail(_ context.Context, sessionID string, limit int) ([]history.Turn, error) {
	if f.tailErr != nil {
		return nil, f.tailErr
	}
	out := f.tail
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeHistory) AppendExchange(_ context.Context, sessionID, question, answer string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended,
		history.Turn{SessionID: sessionID, Role: history.RoleUser, Content: question},
		history.Turn{SessionID: sessionID, Role: history.RoleAssistant, Content: answer},
	)
	return nil
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

func completion(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test-model",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func testConfig(baseURL string) config.AssistantConfig {
	return config.AssistantConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Model:        "test-model",
		Temperature:  0.3,
		HistoryTail:  8,
		SystemPrompt: "be brief",
		Timeout:      5 * time.Second,
	}
}

func TestChatSuccess(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("Здравствуйте!"))
	}))
	defer srv.Close()

	h := &fakeHistory{tail: []history.Turn{
		{Role: history.RoleUser, Content: "earlier question"},
		{Role: history.RoleAssistant, Content: "earlier answer"},
	}}
	c := New(testConfig(srv.URL+"/v1"), h, nil)

	answer, err := c.Chat(context.Background(), "default", "Как дела?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "Здравствуйте!" {
		t.Errorf("answer = %q", answer)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Stream {
		t.Error("stream = true, want false")
	}
	if math.Abs(got.Temperature-0.3) > 1e-6 {
		t.Errorf("temperature = %v, want 0.3", got.Temperature)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("messages[%d].role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[0].Content != "be brief" || got.Messages[3].Content != "Как дела?" {
		t.Errorf("messages = %+v", got.Messages)
	}

	if len(h.appended) != 2 {
		t.Fatalf("appended %d turns, want 2", len(h.appended))
	}
	if h.appended[0].Role != history.RoleUser || h.appended[0].Content != "Как дела?" {
		t.Errorf("first append = %+v", h.appended[0])
	}
	if h.appended[1].Role != history.RoleAssistant || h.appended[1].Content != "Здравствуйте!" {
		t.Errorf("second append = %+v", h.appended[1])
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	h := &fakeHistory{}
	answer, err := New(testConfig(srv.URL+"/v1"), h, nil).Chat(context.Background(), "default", "hi")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty", answer)
	}
	if len(h.appended) != 2 || h.appended[1].Content != "" {
		t.Errorf("appended = %+v, want user turn and empty assistant turn", h.appended)
	}
}

func TestChatHTTPErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			contentType: "application/json",
			body:        `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:        "HTTP 401 • Invalid API Key • API key is empty, invalid or has no access.",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			contentType: "application/json",
			body:        `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`,
			want:        "HTTP 429 • Rate limit reached • Request limit exhausted.",
		},
		{
			name:        "unparseable json body",
			status:      http.StatusServiceUnavailable,
			contentType: "application/json",
			body:        `oops`,
			want:        "HTTP 503 • Server unavailable, try again later.",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			contentType: "text/plain",
			body:        "Bad Gateway",
			want:        "HTTP 502 • Server unavailable, try again later.",
		},
		{
			name:        "gateway timeout",
			status:      http.StatusGatewayTimeout,
			contentType: "text/plain",
			body:        "upstream timed out",
			want:        "HTTP 504 • Server unavailable, try again later.",
		},
		{
			name:        "no hint",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":{"message":"model not found","type":"invalid_request_error"}}`,
			want:        "HTTP 400 • model not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			h := &fakeHistory{}
			_, err := New(testConfig(srv.URL+"/v1"), h, nil).Chat(context.Background(), "default", "hi")

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("got %v (%T), want *HTTPError", err, err)
			}
			if httpErr.Status != tt.status {
				t.Errorf("status = %d, want %d", httpErr.Status, tt.status)
			}
			if err.Error() != tt.want {
				t.Errorf("got %q, want %q", err.Error(), tt.want)
			}
			if len(h.appended) != 0 {
				t.Errorf("appended %d turns after failure, want 0", len(h.appended))
			}
		})
	}
}

func TestChatTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := &fakeHistory{}
	_, err := New(testConfig(url+"/v1"), h, nil).Chat(context.Background(), "default", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("transport failure classified as HTTP error: %v", err)
	}
	if len(h.appended) != 0 {
		t.Errorf("appended %d turns after failure, want 0", len(h.appended))
	}
}

func TestChatHistoryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("ok"))
	}))
	defer srv.Close()

	h := &fakeHistory{tailErr: errors.New("locked")}
	if _, err := New(testConfig(srv.URL+"/v1"), h, nil).Chat(context.Background(), "default", "hi"); err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("got %v, want tail error", err)
	}

	h = &fakeHistory{appendErr: errors.New("disk full")}
	if _, err := New(testConfig(srv.URL+"/v1"), h, nil).Chat(context.Background(), "default", "hi"); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("got %v, want append error", err)
	}
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestTokenBudgetDropsOldestTurns(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("ok"))
	}))
	defer srv.Close()

	h := &fakeHistory{}
	for i := 0; i < 4; i++ {
		h.tail = append(h.tail, history.Turn{Role: history.RoleUser, Content: fmt.Sprintf("t%d b c d e", i)})
	}

	cfg := testConfig(srv.URL + "/v1")
	cfg.SystemPrompt = "sys"
	// reply 3 + system 6 + two turns of 10 + user 6
	cfg.MaxContextTokens = 35

	if _, err := New(cfg, h, wordCounter{}).Chat(context.Background(), "default", "hi"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(got.Messages))
	}
	if got.Messages[1].Content != "t2 b c d e" || got.Messages[2].Content != "t3 b c d e" {
		t.Errorf("kept turns = %q, %q; want the two newest", got.Messages[1].Content, got.Messages[2].Content)
	}
}

func TestTokenBudgetKeepsSystemAndUser(t *testing.T) {
	c := &Client{counter: wordCounter{}, cfg: config.AssistantConfig{SystemPrompt: "sys", MaxContextTokens: 1}}
	msgs := c.buildMessages([]history.Turn{{Role: history.RoleUser, Content: "old"}}, "new")
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Content != "new" {
		t.Errorf("got %+v, want system and user only", msgs)
	}
}

func TestHintForServerErrors(t *testing.T) {
	const unavailable = "Server unavailable, try again later."
	for status, want := range map[int]string{
		500: unavailable,
		501: unavailable,
		504: unavailable,
		599: unavailable,
		499: "",
		600: "",
	} {
		if got := hintFor(status); got != want {
			t.Errorf("hintFor(%d) = %q, want %q", status, got, want)
		}
	}
}
