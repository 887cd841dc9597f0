package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/types"
)

// RemoteClient is an HTTP client for the acuity backend API
type RemoteClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRemoteClient creates a client. baseURL should be like
// "http://localhost:8090". token, when set, is sent as a Bearer token.
func NewRemoteClient(baseURL, token string) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AppendObservation posts one observation
func (c *RemoteClient) AppendObservation(ctx context.Context, obs types.Observation) error {
	return c.post(ctx, "/api/observations", obs, nil)
}

// AppendCompletedTask posts one completed task
func (c *RemoteClient) AppendCompletedTask(ctx context.Context, ct types.CompletedTask) error {
	return c.post(ctx, "/api/tasks", ct, nil)
}

// Observations fetches history, newest first
func (c *RemoteClient) Observations(ctx context.Context, r ledger.Range, limit int) ([]types.Observation, error) {
	params := url.Values{}
	params.Set("range", string(r))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out []types.Observation
	if err := c.get(ctx, "/api/history", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompletedTasks fetches completed tasks, newest first
func (c *RemoteClient) CompletedTasks(ctx context.Context, r ledger.Range) ([]types.CompletedTask, error) {
	params := url.Values{}
	params.Set("range", string(r))
	var out []types.CompletedTask
	if err := c.get(ctx, "/api/tasks", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- HTTP helpers ---

func (c *RemoteClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RemoteClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return parseError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *RemoteClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type apiError struct {
	Error string `json:"error"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("backend error [%s]: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("backend error [%s]: %s", resp.Status, strings.TrimSpace(string(body)))
}
