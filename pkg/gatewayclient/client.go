/**
 * @description
 * This package provides a client for the external rate-limiting gateway's
 * management API. It encapsulates the calls the key provisioning sync needs:
 * creating and deleting keys, listing usage plans, and managing which plan a
 * key is associated with. Gateway keys are immutable once created, so a key
 * rotation is a delete-and-recreate from this client's perspective.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the gateway management API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new gateway API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UsagePlan is a named rate-limit policy container on the gateway.
type UsagePlan struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GatewayKey is the gateway's record of a provisioned API key.
type GatewayKey struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Name  string `json:"name"`
}

type createKeyRequest struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type apiError struct {
	Message string `json:"message"`
}

// CreateKey provisions a new key on the gateway with the given secret value
// and returns the gateway's internal id for it.
func (c *Client) CreateKey(ctx context.Context, name, value string) (string, error) {
	req := createKeyRequest{Name: name, Value: value, Enabled: true}
	var key GatewayKey
	if err := c.do(ctx, http.MethodPost, "/apikeys", req, &key); err != nil {
		return "", fmt.Errorf("failed to create gateway key: %w", err)
	}
	return key.ID, nil
}

// DeleteKey removes a key from the gateway entirely, which also drops any
// usage plan associations it had.
func (c *Client) DeleteKey(ctx context.Context, keyID string) error {
	if err := c.do(ctx, http.MethodDelete, "/apikeys/"+keyID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete gateway key %s: %w", keyID, err)
	}
	return nil
}

// ListUsagePlans returns every usage plan configured on the gateway.
func (c *Client) ListUsagePlans(ctx context.Context) ([]UsagePlan, error) {
	var resp struct {
		Items []UsagePlan `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/usageplans", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list usage plans: %w", err)
	}
	return resp.Items, nil
}

// ListPlanKeyIDs returns the ids of the keys currently associated with a plan.
func (c *Client) ListPlanKeyIDs(ctx context.Context, planID string) ([]string, error) {
	var resp struct {
		Items []GatewayKey `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/usageplans/"+planID+"/keys", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list keys for plan %s: %w", planID, err)
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// AssociateKey adds a key to a usage plan.
func (c *Client) AssociateKey(ctx context.Context, planID, keyID string) error {
	body := map[string]string{"keyId": keyID, "keyType": "API_KEY"}
	if err := c.do(ctx, http.MethodPost, "/usageplans/"+planID+"/keys", body, nil); err != nil {
		return fmt.Errorf("failed to associate key %s with plan %s: %w", keyID, planID, err)
	}
	return nil
}

// DisassociateKey removes a key from a usage plan.
func (c *Client) DisassociateKey(ctx context.Context, planID, keyID string) error {
	if err := c.do(ctx, http.MethodDelete, "/usageplans/"+planID+"/keys/"+keyID, nil, nil); err != nil {
		return fmt.Errorf("failed to disassociate key %s from plan %s: %w", keyID, planID, err)
	}
	return nil
}

// do executes an authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		blob, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(blob, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("gateway API error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("gateway API error (status %d): %s", resp.StatusCode, string(blob))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
