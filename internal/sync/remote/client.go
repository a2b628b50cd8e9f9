// Package remote provides the REST client for the sync endpoint.
//
// The remote contract per table T is POST /api/T (create),
// PUT /api/T/{id} (update/upsert) and DELETE /api/T/{id}. A conflict is
// signaled by HTTP 409 whose body is the authoritative server record.
// Every other non-2xx response is an ordinary delivery failure; the
// client does not distinguish transient from permanent errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kurniadi/farmnexus/internal/models"
)

// ConflictError carries the authoritative server payload returned with
// an HTTP 409.
type ConflictError struct {
	ServerPayload json.RawMessage
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return "remote reported a conflict"
}

// AsConflict extracts a ConflictError from an error chain.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// Client talks to the remote sync endpoint. Authentication is carried
// as an opaque bearer token; the client only forwards it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient falls back to
// http.DefaultClient; no per-call timeout is imposed here.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
	}
}

// Upsert delivers a pending record's current state via PUT.
func (c *Client) Upsert(ctx context.Context, table string, rec *models.Record) error {
	body, err := withIDField(rec.Payload, rec.ID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/api/%s/%s", c.baseURL, table, rec.ID), body)
}

// Create replays a queued create via POST.
func (c *Client) Create(ctx context.Context, table string, id models.UUID, payload json.RawMessage) error {
	body, err := withIDField(payload, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/%s", c.baseURL, table), body)
}

// Update replays a queued update via PUT.
func (c *Client) Update(ctx context.Context, table string, id models.UUID, payload json.RawMessage) error {
	body, err := withIDField(payload, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/api/%s/%s", c.baseURL, table, id), body)
}

// Delete replays a queued delete.
func (c *Client) Delete(ctx context.Context, table string, id models.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/api/%s/%s", c.baseURL, table, id), nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusConflict {
		return &ConflictError{ServerPayload: json.RawMessage(respBody)}
	}

	// The status code is preserved in the error text; callers treat all
	// of these as one failure bucket.
	return fmt.Errorf("remote rejected %s %s: status %d", method, url, resp.StatusCode)
}

// withIDField injects the record id into the JSON body so the server
// can correlate the write.
func withIDField(payload json.RawMessage, id models.UUID) ([]byte, error) {
	fields := make(map[string]interface{})
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	fields["id"] = string(id)
	return json.Marshal(fields)
}
