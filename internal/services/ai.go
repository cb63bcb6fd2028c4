package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

type AIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AIService talks to an OpenAI-compatible chat completion endpoint.
type AIService struct {
	cfg AIConfig
	log zerolog.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewAIService(cfg AIConfig, log zerolog.Logger) *AIService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &AIService{
		cfg:     cfg,
		log:     log.With().Str("component", "completion").Logger(),
		clients: make(map[string]*openai.Client),
	}
}

// Configured reports whether a default API key is available.
func (s *AIService) Configured() bool {
	return s.cfg.APIKey != "" && s.cfg.Model != ""
}

// Complete sends a single chat completion request. apiKey overrides the
// configured key when non-empty. Errors wrap ErrRateLimited or
// ErrCompletionFailed; nothing is retried.
func (s *AIService) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = s.cfg.APIKey
	}
	if key == "" || s.cfg.Model == "" {
		return "", ErrAIUnavailable
	}

	req := openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		Stream:      false,
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	resp, err := s.client(key).CreateChatCompletion(ctx, req)
	if err != nil {
		classified := classifyCompletionError(err)
		s.log.Warn().
			Err(err).
			Bool("rate_limited", errors.Is(classified, ErrRateLimited)).
			Dur("elapsed", time.Since(started)).
			Msg("chat completion failed")
		return "", classified
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrCompletionFailed)
	}

	s.log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(started)).
		Msg("chat completion finished")

	return resp.Choices[0].Message.Content, nil
}

func (s *AIService) client(key string) *openai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[key]; ok {
		return c
	}
	cfg := openai.DefaultConfig(key)
	if s.cfg.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(s.cfg.BaseURL, "/")
	}
	if s.cfg.HTTPClient != nil {
		cfg.HTTPClient = s.cfg.HTTPClient
	}
	c := openai.NewClientWithConfig(cfg)
	s.clients[key] = c
	return c
}
