package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Anthropic is a minimal live LLMProvider. spec.md §1 explicitly treats the
// wire call to any particular model vendor as out of scope ("the prompt-
// shaping logic for each AI step kind is specified, but the wire call to
// any particular model vendor is not") — no example repo in the pack
// depends on a vendor SDK for this, so a small stdlib net/http client is
// the correct amount of implementation here rather than adopting a full
// SDK for a contract the spec deliberately leaves unspecified.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"

func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Messages    []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic api error: %s", parsed.Error.Message)
	}

	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic response had no content blocks")
	}

	return parsed.Content[0].Text, nil
}
