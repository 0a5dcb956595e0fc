// Package webhook sends desktop events to a custom webhook endpoint, so
// wallpaper changes and screen geometry updates can drive other services,
// automation systems or data pipelines.
//
// Example usage:
//
//	client, err := webhook.NewClient("https://example.com/webhook")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = client.Submit(ctx, events.NewWallpaperSet("/usr/share/backgrounds/bg.png", true))
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/events"
	"github.com/Christopher-Hayes/mutter-desktop/internal/common"
	"github.com/fatih/color"
)

// Configuration constants
const (
	defaultRequestTimeout = 30 * time.Second
	maxRetries            = 3
	baseRetryDelay        = 1 * time.Second

	payloadSource  = "mutter-desktop"
	payloadVersion = "1.0.0"
)

// Payload represents the JSON structure sent to the webhook endpoint.
type Payload struct {
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Events    []events.Event         `json:"events"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Client provides methods for sending desktop events to a webhook endpoint.
type Client struct {
	webhookURL    string
	httpClient    *http.Client
	retryDelay    time.Duration
	DebugMode     bool
	CustomHeaders map[string]string
}

var _ events.BatchSink = (*Client)(nil)

// NewClient creates a new webhook client.
// The webhookURL should be a valid HTTP or HTTPS URL.
//
// If webhookURL is empty, it will attempt to read from WEBHOOK_URL
// environment variable.
func NewClient(webhookURL string) (*Client, error) {
	if webhookURL == "" {
		webhookURL = os.Getenv(common.EnvWebhook)
	}

	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL not provided\n\nSet via:\n  1. WEBHOOK_URL environment variable\n  2. --webhook flag\n  3. webhook: in the config file\n\nExample: https://example.com/desktop/webhook")
	}

	if !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		return nil, fmt.Errorf("invalid webhook URL: must start with http:// or https://\n\nProvided: %s", webhookURL)
	}

	client := &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		retryDelay:    baseRetryDelay,
		CustomHeaders: make(map[string]string),
	}

	return client, nil
}

// Close performs any necessary cleanup.
// For webhook client, this is a no-op but included for consistency with other sinks.
func (c *Client) Close() error {
	return nil
}

// debugLog prints debug messages if debug mode is enabled
func (c *Client) debugLog(format string, args ...interface{}) {
	if c.DebugMode {
		color.Cyan("[WEBHOOK DEBUG] "+format, args...)
	}
}

// Submit sends a single event to the webhook endpoint.
func (c *Client) Submit(ctx context.Context, ev events.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload := Payload{
		Timestamp: time.Now(),
		Source:    payloadSource,
		Version:   payloadVersion,
		Events:    []events.Event{ev},
	}

	return c.sendPayload(ctx, payload)
}

// SubmitBatch sends several events in one request. Invalid events are
// skipped with a warning.
func (c *Client) SubmitBatch(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	valid := make([]events.Event, 0, len(batch))
	for _, ev := range batch {
		if err := ev.Validate(); err != nil {
			color.Red("[WEBHOOK] ✗ Skipping invalid %s event %s: %v\n", ev.Kind, ev.ID, err)
			continue
		}
		valid = append(valid, ev)
	}

	if len(valid) == 0 {
		return fmt.Errorf("no valid events to submit after validation")
	}

	payload := Payload{
		Timestamp: time.Now(),
		Source:    payloadSource,
		Version:   payloadVersion,
		Events:    valid,
		Metadata: map[string]interface{}{
			"count":     len(valid),
			"submitted": time.Now().Format(time.RFC3339),
		},
	}

	return c.sendPayload(ctx, payload)
}

// sendPayload sends the webhook payload with retry logic.
func (c *Client) sendPayload(ctx context.Context, payload Payload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	c.debugLog("Payload: %s", string(jsonData))

	var lastErr error
	retryDelay := c.retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			c.debugLog("Retry attempt %d/%d after %v", attempt, maxRetries, retryDelay)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
			}
			retryDelay *= 2 // Exponential backoff
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", payloadSource+"/"+payloadVersion)
		for key, value := range c.CustomHeaders {
			req.Header.Set(key, value)
		}

		c.debugLog("Sending POST request to %s", c.webhookURL)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.debugLog("Response status: %d, body: %s", resp.StatusCode, string(body))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.debugLog("Successfully sent payload")
			return nil
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client errors - don't retry
			return fmt.Errorf("webhook endpoint returned error %d: %s\n\nTroubleshooting:\n  1. Verify webhook URL is correct\n  2. Check authentication headers if required\n  3. Verify endpoint accepts JSON payloads", resp.StatusCode, string(body))
		}

		// Server errors - retry
		lastErr = fmt.Errorf("webhook endpoint returned error %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("failed after %d attempts: %w\n\nTroubleshooting:\n  1. Check network connectivity\n  2. Verify webhook endpoint is accessible\n  3. Check endpoint logs for errors", maxRetries, lastErr)
}

// SetHeader sets a custom HTTP header to be included in all webhook requests.
// This is useful for authentication tokens or API keys.
func (c *Client) SetHeader(key, value string) {
	c.CustomHeaders[key] = value
}

// SetTimeout sets the HTTP request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}
