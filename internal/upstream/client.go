// Package upstream is the HTTP client for the services this gateway
// consumes: the OAuth initiation endpoint, the backfill admin API and the
// promotions artifacts listing. Exact paths and payload shapes are a
// compatibility contract.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inbox-deals-api/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client talks to the upstream deal-discovery services.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient constructs a client with a shared HTTP client. baseURL must not
// end with a slash.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// InitAuth starts the OAuth flow for an email account and returns the URL
// the client must be redirected to.
func (c *Client) InitAuth(ctx context.Context, provider, redirect, email string) (string, error) {
	body := models.AuthInitRequest{
		Provider: provider,
		Redirect: redirect,
		Email:    email,
	}

	var resp models.AuthInitResponse
	if err := c.postJSON(ctx, "/api/nylas/auth", body, &resp); err != nil {
		return "", fmt.Errorf("failed to initiate authentication: %w", err)
	}

	if resp.AuthURL == "" {
		return "", fmt.Errorf("no auth URL received")
	}

	return resp.AuthURL, nil
}

// StartBackfill asks the backfill service to scan a user's mailbox and
// returns the request id identifying the job.
func (c *Client) StartBackfill(ctx context.Context, req models.BackfillRequest) (string, error) {
	var resp models.BackfillResponse
	if err := c.postJSON(ctx, "/admin/backfill", req, &resp); err != nil {
		return "", fmt.Errorf("failed to start backfill: %w", err)
	}

	return resp.RequestID, nil
}

// JobStatus fetches the current status of a backfill job.
func (c *Client) JobStatus(ctx context.Context, requestID string) (models.JobStatus, error) {
	var status models.JobStatus
	if err := c.getJSON(ctx, "/admin/backfill/"+requestID, &status); err != nil {
		return models.JobStatus{}, err
	}

	return status, nil
}

// Promotions fetches the discovered promotions for a user. The endpoint has
// returned both a bare array and a {promotions: [...]} envelope across
// versions; both are accepted.
func (c *Client) Promotions(ctx context.Context, userID string) ([]models.RawPromotion, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/v1/users/%s/artifacts/promotions", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	var bare []models.RawPromotion
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var envelope models.PromotionsResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode promotions response: %w", err)
	}

	return envelope.Promotions, nil
}

// EmailLink constructs the per-user per-email resource URL used as a deal's
// call-to-action. The gateway never fetches it.
func (c *Client) EmailLink(userID, emailID string) string {
	return fmt.Sprintf("%s/api/v1/users/%s/emails/%s", c.baseURL, userID, emailID)
}

func (c *Client) postJSON(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, path)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	data, err := c.get(ctx, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, path)
	}

	return io.ReadAll(resp.Body)
}
