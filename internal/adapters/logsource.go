// Package adapters provides reference implementations of the ports
// interfaces. None are required by the graph/supervisor packages directly —
// callers wire whichever adapters fit their deployment through config.
package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cirepair/orchestrator/internal/ports"
)

// HTTPLogSource fetches workflow logs over plain net/http, grounded on the
// teacher's server package using the standard library directly rather than
// a framework for its HTTP surface.
type HTTPLogSource struct {
	Client  *http.Client
	BaseURL string // e.g. "https://api.github.com"
	Token   string
}

// FetchWorkflowLogs issues a GET against BaseURL/repos/{repo}/actions/runs/{runID}/logs
// and returns the sentinel ports.NoFailedJobFound when the server reports no
// matching run (404), matching the fallback contract the Analysis handler
// expects from every LogSource implementation.
func (h *HTTPLogSource) FetchWorkflowLogs(ctx context.Context, repo, runID string) (ports.WorkflowLogs, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("%s/repos/%s/actions/runs/%s/logs", strings.TrimRight(h.BaseURL, "/"), repo, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.WorkflowLogs{}, fmt.Errorf("adapters: build log request: %w", err)
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ports.WorkflowLogs{}, fmt.Errorf("adapters: fetch workflow logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ports.WorkflowLogs{LogText: ports.NoFailedJobFound}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.WorkflowLogs{}, fmt.Errorf("adapters: read workflow logs: %w", err)
	}
	if resp.StatusCode >= 400 {
		return ports.WorkflowLogs{}, fmt.Errorf("adapters: workflow logs request failed (status=%d): %s", resp.StatusCode, string(body))
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		text = ports.NoFailedJobFound
	}
	return ports.WorkflowLogs{LogText: text, JobName: runID, HeadSHA: ""}, nil
}
