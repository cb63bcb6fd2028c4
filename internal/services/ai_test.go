package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeCompletionAPI is a minimal OpenAI-compatible /chat/completions endpoint.
type fakeCompletionAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	auth     []string
	status   int
	body     string
}

func (f *fakeCompletionAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)

	f.mu.Lock()
	f.requests = append(f.requests, payload)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

const okCompletion = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "test-model",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Q: What is ATP?\nA: Energy currency."}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18}
}`

func newTestAIService(t *testing.T, api *fakeCompletionAPI, key string) *AIService {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewAIService(AIConfig{
		APIKey:  key,
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
}

func TestCompleteSendsConfiguredRequest(t *testing.T) {
	api := &fakeCompletionAPI{body: okCompletion}
	svc := newTestAIService(t, api, "default-key")

	got, err := svc.Complete(context.Background(), "", "explain ATP")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Q: What is ATP?\nA: Energy currency." {
		t.Errorf("unexpected content %q", got)
	}

	if len(api.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.requests))
	}
	req := api.requests[0]
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	if req["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", req["max_tokens"])
	}
	if temp, ok := req["temperature"].(float64); !ok || temp < 0.69 || temp > 0.71 {
		t.Errorf("temperature = %v", req["temperature"])
	}
	if stream, ok := req["stream"]; ok && stream != false {
		t.Errorf("stream = %v", stream)
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %v", req["messages"])
	}
	system := msgs[0].(map[string]any)
	user := msgs[1].(map[string]any)
	if system["role"] != "system" || system["content"] != systemPrompt {
		t.Errorf("unexpected system message %v", system)
	}
	if user["role"] != "user" || user["content"] != "explain ATP" {
		t.Errorf("unexpected user message %v", user)
	}
	if api.auth[0] != "Bearer default-key" {
		t.Errorf("expected default key, got %q", api.auth[0])
	}
}

func TestCompleteUsesPerCallKey(t *testing.T) {
	api := &fakeCompletionAPI{body: okCompletion}
	svc := newTestAIService(t, api, "default-key")

	if _, err := svc.Complete(context.Background(), "session-key", "p"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if api.auth[0] != "Bearer session-key" {
		t.Errorf("expected session key, got %q", api.auth[0])
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"429", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, ErrRateLimited},
		{"quota code", http.StatusForbidden, `{"error":{"message":"no credits","type":"insufficient_quota","code":"insufficient_quota"}}`, ErrRateLimited},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, ErrCompletionFailed},
		{"unparseable body", http.StatusBadGateway, `upstream exploded`, ErrCompletionFailed},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`, ErrCompletionFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeCompletionAPI{status: tc.status, body: tc.body}
			svc := newTestAIService(t, api, "k")

			_, err := svc.Complete(context.Background(), "", "prompt")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(api.requests) != 1 {
				t.Errorf("expected exactly one attempt, got %d", len(api.requests))
			}
		})
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	api := &fakeCompletionAPI{body: okCompletion}
	svc := newTestAIService(t, api, "")

	if svc.Configured() {
		t.Error("service without key reported as configured")
	}
	if _, err := svc.Complete(context.Background(), "  ", "prompt"); !errors.Is(err, ErrAIUnavailable) {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(api.requests))
	}
}

func TestCompleteHonoursTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	svc := NewAIService(AIConfig{
		APIKey:  "k",
		BaseURL: srv.URL + "/v1",
		Model:   "m",
		Timeout: 50 * time.Millisecond,
	}, zerolog.Nop())

	_, err := svc.Complete(context.Background(), "", "prompt")
	if !errors.Is(err, ErrCompletionFailed) {
		t.Fatalf("expected ErrCompletionFailed on timeout, got %v", err)
	}
}
