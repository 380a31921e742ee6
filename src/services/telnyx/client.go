// Package telnyx is a small call-control client: the handful of actions the
// intercom issues against a live call, plus the webhook event shapes it
// receives.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/logger"
)

// DefaultBaseURL is the v2 REST endpoint.
const DefaultBaseURL = "https://api.telnyx.com/v2"

// Client issues call-control actions. Every action is sent once; failures are
// returned to the caller and never retried here.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logger.Logger
}

// ClientConfig holds configuration for the call-control client
type ClientConfig struct {
	APIKey  string
	BaseURL string // default DefaultBaseURL

	// Timeout bounds every action. Default 10s.
	Timeout time.Duration

	HTTPClient *http.Client
}

// NewClient creates a call-control client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Client{
		apiKey:     config.APIKey,
		baseURL:    config.BaseURL,
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		log:        logger.WithPrefix("Telnyx"),
	}
}

// Answer answers an incoming call.
func (c *Client) Answer(ctx context.Context, callID string, opts AnswerOptions) error {
	return c.action(ctx, callID, "answer", opts)
}

// Transfer bridges the call to another number.
func (c *Client) Transfer(ctx context.Context, callID string, opts TransferOptions) error {
	return c.action(ctx, callID, "transfer", opts)
}

// StartPlayback plays an audio file into the call.
func (c *Client) StartPlayback(ctx context.Context, callID string, opts PlaybackOptions) error {
	return c.action(ctx, callID, "playback_start", opts)
}

// SendDTMF sends a run of DTMF tones, each lasting durationMs.
func (c *Client) SendDTMF(ctx context.Context, callID string, digits string, durationMs int) error {
	return c.action(ctx, callID, "send_dtmf", DTMFOptions{Digits: digits, DurationMillis: durationMs})
}

// Hangup ends the call.
func (c *Client) Hangup(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "hangup", struct{}{})
}

func (c *Client) action(ctx context.Context, callID, action string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telnyx: marshal %s: %w", action, err)
	}

	endpoint := fmt.Sprintf("%s/calls/%s/actions/%s", c.baseURL, url.PathEscape(callID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("telnyx: create %s request: %w", action, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.ForCall(callID).Debug("POST %s", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telnyx: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Action: action}
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		json.Unmarshal(raw, apiErr)
	}
	return apiErr
}
