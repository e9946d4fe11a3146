// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package notion is a minimal client for the Notion REST API, covering the
surface the report sync engine needs: database queries, page create/update/
archive, and block children manipulation.

# Transport

Every request goes through one retry loop: HTTP 429 honours the Retry-After
header (falling back to exponential backoff), and 5xx, network and timeout
errors back off and retry. All other HTTP errors surface immediately as
*APIError with status and body. Three attempts total, then the last error
wins.

# Limits

Notion caps rich-text elements at 2000 characters and append-children
requests at 100 blocks; the builders and AppendBlocks handle both caps so
callers never have to.
*/
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"

	maxRetries         = 3
	initialBackoff     = time.Second
	httpTimeout        = 30 * time.Second
	maxTextChunk       = 2000
	maxBlocksPerAppend = 100
)

// APIError is a non-retryable HTTP failure from the Notion API.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error %d %s %s: %s", e.Status, e.Method, e.Path, e.Body)
}

// Client talks to the Notion REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger

	// sleep is swappable so tests do not wait out real backoff.
	sleep func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Notion client. An empty API key fails fast.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("notion: API key is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		logger:     slog.Default(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request executes one API call with the shared retry loop and decodes the
// JSON response into out when out is non-nil.
func (c *Client) request(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s %s payload: %w", method, path, err)
		}
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", notionVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if attempt < maxRetries {
				c.logger.Warn("notion request failed, retrying", "method", method, "path", path, "error", err)
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			return fmt.Errorf("network error on %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < maxRetries {
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			return fmt.Errorf("read response of %s %s: %w", method, path, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := backoff
			if header := resp.Header.Get("Retry-After"); header != "" {
				if secs, err := strconv.ParseFloat(header, 64); err == nil {
					wait = time.Duration(secs * float64(time.Second))
				}
			}
			lastErr = &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
			if attempt < maxRetries {
				c.logger.Warn("notion rate-limited, backing off", "path", path, "wait", wait)
				c.sleep(wait)
				backoff *= 2
				continue
			}
			return lastErr
		}

		if resp.StatusCode >= 500 {
			lastErr = &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
			if attempt < maxRetries {
				c.logger.Warn("notion server error, retrying",
					"method", method, "path", path, "status", resp.StatusCode)
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			return lastErr
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response of %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
