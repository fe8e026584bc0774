package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/gridcwl/internal/report"
)

// Client talks to a status API server. Used by remote job wrappers to push
// status updates to the submitting host.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ListRuns fetches all tracked runs.
func (c *Client) ListRuns(ctx context.Context) ([]*report.Run, error) {
	var runs []*report.Run
	if err := c.get(ctx, "/api/v1/runs/", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*report.Run, error) {
	var run report.Run
	if err := c.get(ctx, "/api/v1/runs/"+id, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListStatus fetches the status history of a run.
func (c *Client) ListStatus(ctx context.Context, id string) ([]report.StatusUpdate, error) {
	var updates []report.StatusUpdate
	if err := c.get(ctx, "/api/v1/runs/"+id+"/status", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// PushStatus records a status update for a run.
func (c *Client) PushStatus(ctx context.Context, id string, u report.StatusUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/runs/"+id+"/status", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("push status: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
