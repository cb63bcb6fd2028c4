package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrAIUnavailable is returned when no completion API key is configured.
	ErrAIUnavailable = errors.New("completion api key is not configured")
	// ErrDocumentUnreadable means text extraction failed and the document must be re-uploaded.
	ErrDocumentUnreadable = errors.New("document is unreadable")
	// ErrRateLimited means the completion service throttled us or the account quota is exhausted.
	ErrRateLimited = errors.New("completion service rate limit reached")
	// ErrCompletionFailed covers every other completion failure.
	ErrCompletionFailed = errors.New("completion request failed")
	// ErrQuotaExceeded is returned by the admission check before any request is issued.
	ErrQuotaExceeded = errors.New("query quota exceeded")
	ErrUnknownTask   = errors.New("unknown task")
)

var rateLimitCodes = []string{"rate_limit_exceeded", "insufficient_quota", "rate_limit"}

// classifyCompletionError wraps err with ErrRateLimited or ErrCompletionFailed.
func classifyCompletionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCompletionFailed) {
		return err
	}
	if isRateLimit(err) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", ErrCompletionFailed, err)
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && matchesRateLimit(code) {
			return true
		}
		return matchesRateLimit(apiErr.Type)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func matchesRateLimit(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	for _, c := range rateLimitCodes {
		if code == c {
			return true
		}
	}
	return false
}
