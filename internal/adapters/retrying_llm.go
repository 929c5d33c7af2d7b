package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cirepair/orchestrator/internal/llmerrors"
	"github.com/cirepair/orchestrator/internal/ports"
)

// MaxRetryAttempts is the 3-attempt retry ceiling §7 requires for transient
// LanguageModel failures.
const MaxRetryAttempts = 3

// ProviderCaller is the minimal surface RetryingLLM drives — one HTTP (or
// otherwise networked) call per attempt, returning raw model text. Grounded
// on the teacher's ProviderAdapter.Complete shape
// (internal/llm/providers/anthropic/adapter.go), trimmed to what this spec
// actually needs: the teacher's full Request/Response/Stream/Middleware
// plumbing is not reproduced here (see DESIGN.md — those types are absent
// from every retrieved teacher file, so there is nothing concrete to adapt
// beyond the HTTP-call-then-classify shape captured by this interface).
type ProviderCaller interface {
	Name() string
	Call(ctx context.Context, prompt string) (string, error)
}

// RetryingLLM implements ports.LanguageModel: it drives a ProviderCaller
// through up to MaxRetryAttempts, classifying every error through
// llmerrors and backing off between attempts via llmerrors.DelayForAttempt
// — the teacher's ErrorFromHTTPStatus/backoff.go pairing, generalized from
// an HTTP-specific client into the graph package's LanguageModel port.
type RetryingLLM struct {
	Provider    ProviderCaller
	Backoff     llmerrors.BackoffConfig
	MaxAttempts int
}

// NewRetryingLLM wires a RetryingLLM with the spec's default backoff and
// attempt ceiling.
func NewRetryingLLM(provider ProviderCaller) *RetryingLLM {
	return &RetryingLLM{
		Provider:    provider,
		Backoff:     llmerrors.DefaultBackoffConfig(),
		MaxAttempts: MaxRetryAttempts,
	}
}

func (r *RetryingLLM) Generate(ctx context.Context, bundle ports.PromptBundle) (ports.GenerateResult, error) {
	text, err := r.callWithRetry(ctx, bundle.Contents)
	if err != nil {
		return ports.GenerateResult{}, err
	}
	if bundle.Validate != nil {
		if verr := bundle.Validate(text); verr != nil {
			return ports.GenerateResult{}, verr
		}
	}
	return ports.GenerateResult{Text: text}, nil
}

// GenerateFix composes a fix prompt from the failing code, the diagnosed
// error, and surrounding context, then drives the same retry path as
// Generate. Callers must still extract the fenced code block from the
// result before writing to disk (invariant I5) — RetryingLLM only owns
// network retry, never content validation.
func (r *RetryingLLM) GenerateFix(ctx context.Context, code, errorText, context string) (ports.GenerateResult, error) {
	prompt := fmt.Sprintf(
		"You are fixing a CI failure.\n\nContext:\n%s\n\nError:\n%s\n\nCurrent file contents:\n%s\n\nRespond with the corrected file contents in a single fenced code block.",
		context, errorText, code,
	)
	text, err := r.callWithRetry(ctx, prompt)
	if err != nil {
		return ports.GenerateResult{}, err
	}
	return ports.GenerateResult{Text: text}, nil
}

func (r *RetryingLLM) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxRetryAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := r.Provider.Call(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var classified llmerrors.Error
		if !errors.As(err, &classified) || !classified.Retryable() || attempt == maxAttempts {
			return "", err
		}

		delay := llmerrors.DelayForAttempt(attempt, r.Backoff, fmt.Sprintf("%s:%d", r.Provider.Name(), attempt))
		if retryAfter := classified.RetryAfter(); retryAfter != nil && *retryAfter > delay {
			delay = *retryAfter
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}
