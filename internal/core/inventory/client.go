// Package inventory implements rules.InventorySource over the inventory
// service's HTTP API.
//
//	GET {base}/v1/inventory/{productID}?seller={sellerID}&site={siteID}
//	200 {"product_id": "...", "available": 42}
//	404 product not stocked by that seller on that site (level 0)
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single inventory request.
const DefaultTimeout = 2 * time.Second

// Client queries the inventory service.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for baseURL. Non-positive timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inventory base URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

type levelResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

// InventoryLevel implements rules.InventorySource.
func (c *Client) InventoryLevel(ctx context.Context, productID, sellerID, siteID string) (int, error) {
	u := c.base.JoinPath("v1", "inventory", productID)
	q := url.Values{}
	q.Set("seller", sellerID)
	q.Set("site", siteID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("inventory request for %s: %w", productID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("inventory service returned %d for %s: %s", resp.StatusCode, productID, strings.TrimSpace(string(body)))
	}

	var level levelResponse
	if err := json.NewDecoder(resp.Body).Decode(&level); err != nil {
		return 0, fmt.Errorf("decode inventory response for %s: %w", productID, err)
	}
	if level.Available < 0 {
		return 0, nil
	}
	return level.Available, nil
}
