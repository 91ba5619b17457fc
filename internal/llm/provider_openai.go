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

	"github.com/estuary/vizwork/internal/jobs"
)

// OpenAIProvider is a single-shot chat-completion client against the
// OpenAI-compatible chat/completions endpoint. No OpenAI Go SDK exists in
// the retrieved pack (see DESIGN.md); scoped to the one endpoint in use.
// The model and API key travel per-call on cfg, since both are per-job
// fields (§3), not process config.
type OpenAIProvider struct {
	http    *http.Client
	baseURL string
}

func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.openai.com/v1/chat/completions",
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Name(ctx context.Context, samples []string, cfg *jobs.LLMConfig) (string, error) {
	reqBody, err := json.Marshal(openAIRequest{
		Model: cfg.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: BuildPrompt(samples)},
		},
		MaxTokens:   cfg.Config.MaxTokensOrDefault(),
		Temperature: cfg.Config.TemperatureOrDefault(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(data))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
