/**
 * @description
 * Minimal client for the external identity provider's management API.
 * Account deletion removes the user from the identity provider first, then
 * the local store records; only the deletion call is needed here.
 */
package authclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the identity provider's management API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new identity provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DeleteUser removes the user from the identity provider. A 404 from the
// provider is treated as success so the call stays idempotent.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/users/"+userID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("identity provider error (status %d): %s", resp.StatusCode, string(blob))
	}
	return nil
}
