package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the identity/compliance service. Only the approval check
// is consumed here; KYC decisioning itself lives entirely on the other side.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type approvalResponse struct {
	TraderID string `json:"trader_id"`
	Approved bool   `json:"approved"`
}

// IsApproved reports whether the trader cleared compliance. Any transport or
// decode failure is an error, not a denial, so callers can distinguish "not
// approved" from "could not check".
func (c *Client) IsApproved(ctx context.Context, traderID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/v1/compliance/%s/approval", c.baseURL, traderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build compliance request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("compliance request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown trader: no approval on file.
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("compliance service status %d", resp.StatusCode)
	}

	var approval approvalResponse
	if err := json.NewDecoder(resp.Body).Decode(&approval); err != nil {
		return false, fmt.Errorf("decode compliance response: %w", err)
	}
	return approval.Approved, nil
}
