// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certpin"
)

// DefaultSubmitTimeout bounds a single report submission.
const DefaultSubmitTimeout = 10 * time.Second

// ClientConfig configures a report client.
type ClientConfig struct {

	// Endpoint is the report collection URL, e.g.
	// "https://reports.example.com/v1/reports". Required.
	Endpoint string

	// Timeout bounds each submission, including the background ones
	// fired from PinFailure. Defaults to DefaultSubmitTimeout.
	Timeout time.Duration

	// HTTPClient optionally overrides the HTTP client, for example to
	// submit reports over a pinned connection.
	HTTPClient *http.Client

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client submits pin validation failure reports to a collection endpoint.
// It implements the policy Reporter interface; reports fired through
// PinFailure are posted on a background goroutine so the TLS handshake
// path never waits on the collector.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a report client for the given endpoint.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint %q: %w", ErrInvalidConfig, cfg.Endpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint %q: unsupported scheme", ErrInvalidConfig, cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger.With("component", "report_client"),
	}, nil
}

// Submit posts a single report and waits for the collector's response.
func (c *Client) Submit(ctx context.Context, report *Report) error {
	if report == nil {
		return fmt.Errorf("%w: report is nil", ErrInvalidReport)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %s", ErrSubmitFailed, resp.Status)
	}
	return nil
}

// PinFailure converts the failure into a report and submits it in the
// background. Delivery errors are logged, never surfaced to the caller.
func (c *Client) PinFailure(failure certpin.Failure) {
	report := NewReport(failure)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.Submit(ctx, report); err != nil {
			c.logger.Warn("pin failure report not delivered",
				"endpoint", c.endpoint, "hostname", report.Hostname, "error", err)
		}
	}()
}
