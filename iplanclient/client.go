package iplanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("iplan api base url is empty")

// Client submits plan requests and confirmations to the planning engine.
// Each call also returns the raw response body for audit.
type Client interface {
	RequestPlan(ctx context.Context, req PlanRequest) (*PlanResponse, []byte, error)
	ConfirmPlan(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, []byte, error)
}

type iplanClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL string, apiKey string, httpClient *http.Client) (Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &iplanClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    httpClient,
	}, nil
}

// NewFromEnv reads IPLAN_API_BASE_URL and IPLAN_API_KEY.
func NewFromEnv() (Client, error) {
	return New(os.Getenv("IPLAN_API_BASE_URL"), os.Getenv("IPLAN_API_KEY"), nil)
}

func (c *iplanClient) RequestPlan(ctx context.Context, req PlanRequest) (*PlanResponse, []byte, error) {
	var resp PlanResponse
	raw, err := c.post(ctx, "/atp-ctp/request", req, &resp)
	if err != nil {
		return nil, raw, err
	}
	return &resp, raw, nil
}

func (c *iplanClient) ConfirmPlan(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, []byte, error) {
	var resp ConfirmResponse
	raw, err := c.post(ctx, "/atp-ctp/confirm", req, &resp)
	if err != nil {
		return nil, raw, err
	}
	return &resp, raw, nil
}

func (c *iplanClient) post(ctx context.Context, path string, in any, out any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("iplan api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return body, fmt.Errorf("iplan response: %w", err)
	}
	return body, nil
}
