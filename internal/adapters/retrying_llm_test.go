package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cirepair/orchestrator/internal/llmerrors"
	"github.com/cirepair/orchestrator/internal/ports"
)

type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(ctx context.Context, prompt string) (string, error) {
	i := p.calls
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	var resp string
	if i < len(p.responses) {
		resp = p.responses[i]
	}
	return resp, err
}

func noDelayBackoff() llmerrors.BackoffConfig {
	return llmerrors.BackoffConfig{InitialDelayMS: 1, BackoffFactor: 1, MaxDelayMS: 5, Jitter: false}
}

func TestRetryingLLMSucceedsOnFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"fixed content"}}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	got, err := r.Generate(context.Background(), ports.PromptBundle{Contents: "do it"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got.Text != "fixed content" {
		t.Fatalf("Text = %q, want %q", got.Text, "fixed content")
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d, want 1", provider.calls)
	}
}

func TestRetryingLLMRetriesRetryableErrorThenSucceeds(t *testing.T) {
	retryAfter := time.Duration(0)
	provider := &scriptedProvider{
		responses: []string{"", "second try worked"},
		errs:      []error{llmerrors.FromHTTPStatus("scripted", 429, "rate limited", &retryAfter), nil},
	}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	got, err := r.Generate(context.Background(), ports.PromptBundle{Contents: "do it"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got.Text != "second try worked" {
		t.Fatalf("Text = %q, want %q", got.Text, "second try worked")
	}
	if provider.calls != 2 {
		t.Fatalf("calls = %d, want 2", provider.calls)
	}
}

func TestRetryingLLMGivesUpAfterMaxAttempts(t *testing.T) {
	zero := time.Duration(0)
	rateLimited := func() error { return llmerrors.FromHTTPStatus("scripted", 429, "rate limited", &zero) }
	provider := &scriptedProvider{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	_, err := r.Generate(context.Background(), ports.PromptBundle{Contents: "do it"})
	if err == nil {
		t.Fatal("expected an error after exhausting all retryable attempts")
	}
	if provider.calls != 3 {
		t.Fatalf("calls = %d, want exactly MaxAttempts=3", provider.calls)
	}
}

func TestRetryingLLMDoesNotRetryNonRetryableError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{llmerrors.FromHTTPStatus("scripted", 401, "bad key", nil)}}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	_, err := r.Generate(context.Background(), ports.PromptBundle{Contents: "do it"})
	if err == nil {
		t.Fatal("expected the authentication error to surface immediately")
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d, want 1 — non-retryable errors must not be retried", provider.calls)
	}
	if !llmerrors.IsAuthenticationError(err) {
		t.Fatalf("expected an AuthenticationError, got %v", err)
	}
}

func TestRetryingLLMDoesNotRetryUnclassifiedError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("boom")}}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	_, err := r.Generate(context.Background(), ports.PromptBundle{Contents: "do it"})
	if err == nil {
		t.Fatal("expected the unclassified error to surface")
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d, want 1 — an error that doesn't satisfy llmerrors.Error must not be retried", provider.calls)
	}
}

func TestRetryingLLMGenerateFixExtractsNoSpecialHandling(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"```py\nprint(1)\n```"}}
	r := &RetryingLLM{Provider: provider, Backoff: noDelayBackoff(), MaxAttempts: 3}

	got, err := r.GenerateFix(context.Background(), "print(0)", "off by one", "ctx")
	if err != nil {
		t.Fatalf("GenerateFix returned error: %v", err)
	}
	if got.Text == "" {
		t.Fatal("expected non-empty generated text")
	}
}
