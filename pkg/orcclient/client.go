// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orcclient is a thin Go client for orc's read-only status API: a
// small struct wrapping an *http.Client plus a base URL and bearer secret.
package orcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to one orc instance's status API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// New builds a Client. baseURL is e.g. "http://127.0.0.1:8787".
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusResponse decodes the running_jobs and sessions fields of
// statusapi's /status.json body; retry_hints is not decoded.
type StatusResponse struct {
	RunningJobs int                    `json:"running_jobs"`
	Sessions    map[string]interface{} `json:"sessions"`
}

// Status fetches the current engine status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status.json", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orcclient: status request failed: %s", resp.Status)
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("orcclient: decode status: %w", err)
	}
	return &out, nil
}

// Healthy reports whether /healthz returns 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) authorize(req *http.Request) {
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
}
