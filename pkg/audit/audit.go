// Package audit reports run outcomes to an external HTTP endpoint.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/engine/executor"
)

// Event is the payload posted after a run.
type Event struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Operation  string    `json:"operation"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  []string  `json:"succeeded"`
	Failed     []string  `json:"failed"`
	NotApplied []string  `json:"not_applied"`
}

// Client posts run summaries to a configured endpoint. Auditing is best
// effort: failures are logged and never affect the run's outcome.
type Client struct {
	url  string
	http *http.Client
	log  *slog.Logger
}

// NewClient creates a client for the given endpoint URL.
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logging.New("audit"),
	}
}

// Report posts the summary. Errors are logged, not returned.
func (c *Client) Report(ctx context.Context, operation string, summary *executor.RunSummary) {
	event := Event{
		ID:         uuid.NewString(),
		RunID:      summary.RunID,
		Operation:  operation,
		StartedAt:  summary.StartedAt,
		FinishedAt: time.Now(),
		Succeeded:  summary.Succeeded(),
		Failed:     summary.Failed(),
		NotApplied: summary.NotApplied(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		c.log.Error("failed to encode audit event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.log.Error("failed to build audit request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("failed to post audit event", "url", c.url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.log.Error("audit endpoint rejected event",
			"url", c.url, "status", fmt.Sprintf("%d", resp.StatusCode))
		return
	}
	c.log.Debug("audit event posted", "run_id", summary.RunID)
}
