package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/api"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(server, token string) *apiClient {
	base := server
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

func (c *apiClient) listDeadLetters(ctx context.Context) ([]api.DeadLetter, error) {
	var out api.DeadLetterListResponse
	if err := c.get(ctx, "/api/deadletters", &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *apiClient) transcription(ctx context.Context, req api.TranscriptionRequest) (api.TranscriptionResponse, error) {
	var out api.TranscriptionResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcription", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.do(httpReq, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure api.ErrorResponse
		if err := json.Unmarshal(body, &failure); err == nil && failure.Message != "" {
			if failure.PreservedEntryID != "" {
				return fmt.Errorf("%s (audio preserved, retry with entry %s)", failure.Message, failure.PreservedEntryID)
			}
			return fmt.Errorf("%s", failure.Message)
		}
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
