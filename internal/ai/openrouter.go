package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// openrouterProvider is generation-only; embedding requests fall through to
// ErrUnavailable so a gemini embedder must be configured alongside it.
type openrouterProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type openrouterRequest struct {
	Model    string          `json:"model"`
	Messages []openrouterMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openrouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openrouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openrouterProvider) Name() string {
	return "openrouter"
}

func (p *openrouterProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	reqBody := openrouterRequest{
		Model:    model,
		Messages: []openrouterMsg{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		// A 4xx is the API rejecting this request (bad input, content
		// policy); retrying it would just repeat the rejection. Rate
		// limits and 5xx stay retryable.
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests {
			return "", &GenerationError{
				Reason: fmt.Sprintf("openrouter rejected request: %s", resp.Status),
				Raw:    strings.TrimSpace(string(body)),
			}
		}
		return "", fmt.Errorf("openrouter request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out openrouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &GenerationError{Reason: "openrouter response has no choices"}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openrouterProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	return nil, ErrUnavailable
}

func createOpenRouterFactory(args interface{}) (IProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &openrouterProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  http.DefaultClient,
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
