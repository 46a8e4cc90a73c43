package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sp500-autopilot/internal/model"
)

// Analysis phases reported by the backend.
const (
	PhaseIdle         = "idle"
	PhaseRunning500   = "running_500"
	PhaseCompleted500 = "completed_500"
	PhaseRunning10    = "running_10"
	PhaseCompleted10  = "completed_10"
)

// SystemStatus is the backend's analysis progress snapshot.
type SystemStatus struct {
	Phase   string `json:"phase"`
	Running bool   `json:"running"`
	Mode    string `json:"mode"`
}

// Service is the narrow surface the coordinator consumes. All starts are
// fire-and-forget; progress is tracked through Status polls.
type Service interface {
	StartBulkAnalysis(ctx context.Context) error
	StartFinalistAnalysis(ctx context.Context) error
	StopAnalysis(ctx context.Context) error
	Status(ctx context.Context) (SystemStatus, error)
	LatestRecommendation(ctx context.Context) (*model.RecommendationRecord, error)
}

// Client implements Service against the analysis backend's REST API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient creates a client with optional proxy support.
func NewClient(baseURL, apiKey, proxyURL string) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// apiResponse is the backend's envelope for command endpoints.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) StartBulkAnalysis(ctx context.Context) error {
	return c.post(ctx, "/api/start-analysis")
}

func (c *Client) StartFinalistAnalysis(ctx context.Context) error {
	return c.post(ctx, "/api/start-analysis-10")
}

func (c *Client) StopAnalysis(ctx context.Context) error {
	return c.post(ctx, "/api/stop-analysis")
}

// Status polls the backend's analysis progress.
func (c *Client) Status(ctx context.Context) (SystemStatus, error) {
	var st SystemStatus
	if err := c.get(ctx, "/api/system-status", &st); err != nil {
		return SystemStatus{}, err
	}
	return st, nil
}

// LatestRecommendation fetches the final recommendation, or nil when the
// backend has none yet.
func (c *Client) LatestRecommendation(ctx context.Context) (*model.RecommendationRecord, error) {
	var result struct {
		Success        bool                        `json:"success"`
		Recommendation *model.RecommendationRecord `json:"recommendation"`
	}
	if err := c.get(ctx, "/api/get-final-recommendation", &result); err != nil {
		return nil, err
	}
	if !result.Success || result.Recommendation == nil || result.Recommendation.Symbol == "" {
		return nil, nil
	}
	return result.Recommendation, nil
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.auth(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post %s: status %d, body: %s", path, resp.StatusCode, string(body))
	}
	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !ar.Success {
		return fmt.Errorf("post %s: backend refused: %s", path, ar.Message)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.auth(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("get %s: status %d, body: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}
