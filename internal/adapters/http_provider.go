package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cirepair/orchestrator/internal/llmerrors"
)

// HTTPProvider is a reference ProviderCaller backed by a JSON chat-completion
// style HTTP endpoint, grounded on the teacher's anthropic adapter request
// shape (single "prompt"/"messages" field in, single text field out) and its
// status-code classification via ErrorFromHTTPStatus (here, the adapted
// llmerrors.FromHTTPStatus).
type HTTPProvider struct {
	ProviderName string
	Client       *http.Client
	Endpoint     string
	APIKey       string
	Model        string
}

func (p *HTTPProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "http"
}

type httpProviderRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type httpProviderResponse struct {
	Text string `json:"text"`
}

// Call issues one POST per invocation; RetryingLLM owns the retry loop
// across calls, so Call itself never retries internally.
func (p *HTTPProvider) Call(ctx context.Context, prompt string) (string, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(httpProviderRequest{Model: p.Model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("adapters: encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("adapters: build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", llmerrors.NewRequestTimeoutError(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("adapters: read provider response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var retryAfter *time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			retryAfter = llmerrors.ParseRetryAfter(v, time.Now())
		}
		return "", llmerrors.FromHTTPStatus(p.Name(), resp.StatusCode, string(raw), retryAfter)
	}

	var parsed httpProviderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("adapters: decode provider response: %w", err)
	}
	return parsed.Text, nil
}
