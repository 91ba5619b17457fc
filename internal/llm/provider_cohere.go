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

// CohereProvider is a single-shot chat-completion client against Cohere's
// chat API. No Cohere Go SDK exists in the retrieved pack (see
// DESIGN.md); the surface used here is a single endpoint, so a direct
// net/http client is the correct scope. The model and API key travel
// per-call on cfg, since both are per-job fields (§3), not process config.
type CohereProvider struct {
	http    *http.Client
	baseURL string
}

func NewCohereProvider() *CohereProvider {
	return &CohereProvider{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.cohere.com/v1/chat",
	}
}

type cohereRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type cohereResponse struct {
	Text string `json:"text"`
}

func (p *CohereProvider) Name(ctx context.Context, samples []string, cfg *jobs.LLMConfig) (string, error) {
	reqBody, err := json.Marshal(cohereRequest{
		Model:       cfg.Model,
		Message:     BuildPrompt(samples),
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
		return "", fmt.Errorf("cohere: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("cohere: status %d: %s", resp.StatusCode, string(data))
	}

	var out cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("cohere: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
