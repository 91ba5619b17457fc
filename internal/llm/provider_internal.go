package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/estuary/vizwork/internal/backoff"
	"github.com/estuary/vizwork/internal/jobs"
)

const internalMaxAttempts = 5

// InternalProvider calls the first-party naming endpoint at
// {base}/api/chat. Unlike the external providers it is always usable
// (§4.E "Usable") and retries on HTTP 503 with exponential backoff and
// jitter, guarded by a circuit breaker so a sustained outage fails fast
// instead of queuing retries behind a dead dependency.
type InternalProvider struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewInternalProvider(baseURL string) *InternalProvider {
	return &InternalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-internal",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// internalChatRequest matches spec.md §4.F's literal body shape for the
// internal inference endpoint: {model, messages, max_tokens, temperature}.
type internalChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

// internalChatResponse mirrors the real endpoint's reply shape,
// {"message": {"content": "..."}}, per
// original_source/crates/worker-visualizations-py/src/llm_namer.py's
// _generate_local (result["message"]["content"]).
type internalChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (p *InternalProvider) Name(ctx context.Context, samples []string, cfg *jobs.LLMConfig) (string, error) {
	prompt := BuildPrompt(samples)

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.callWithRetry(ctx, prompt, cfg)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (p *InternalProvider) callWithRetry(ctx context.Context, prompt string, cfg *jobs.LLMConfig) (string, error) {
	var lastErr error
	for attempt := 0; attempt < internalMaxAttempts; attempt++ {
		if attempt > 0 {
			d := backoff.Jitter(backoff.Capped(attempt, 30*time.Second))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d):
			}
		}

		text, retryable, err := p.callOnce(ctx, prompt, cfg)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("llm: internal provider exhausted %d attempts: %w", internalMaxAttempts, lastErr)
}

// callOnce makes a single attempt. The bool return reports whether the
// error (if any) is worth retrying: only HTTP 503 is, per §4.F.
func (p *InternalProvider) callOnce(ctx context.Context, prompt string, cfg *jobs.LLMConfig) (string, bool, error) {
	reqBody, err := json.Marshal(internalChatRequest{
		Model:       cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   cfg.Config.MaxTokensOrDefault(),
		Temperature: cfg.Config.TemperatureOrDefault(),
	})
	if err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("llm: internal provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		data, _ := io.ReadAll(resp.Body)
		return "", true, fmt.Errorf("llm: internal provider: status 503: %s", string(data))
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("llm: internal provider: status %d: %s", resp.StatusCode, string(data))
	}

	var out internalChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("llm: internal provider: decode response: %w", err)
	}
	return strings.TrimSpace(out.Message.Content), false, nil
}
