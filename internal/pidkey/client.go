// Package pidkey resolves installation ids into confirmation ids through
// the CIDMS API at pidkey.com.
package pidkey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cidbank/internal/services"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type cidmsResponse struct {
	Result         string          `json:"result"`
	ConfirmationID string          `json:"confirmationid"`
	ErrorExecuting string          `json:"errorexecuting"`
	HadOccurred    json.RawMessage `json:"hadoccurred"`
}

// Convert asks the provider for a confirmation id. The endpoint declares a
// text mimetype but usually carries JSON; a non-JSON body long enough to be
// a confirmation id is accepted as one.
func (c *Client) Convert(ctx context.Context, installationID string) (string, error) {
	query := url.Values{}
	query.Set("iids", installationID)
	query.Set("justforcheck", "0")
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("pidkey: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", services.ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", services.ErrProviderUnavailable, err)
	}
	text := strings.TrimSpace(string(body))

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		var parsed cidmsResponse
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", services.ErrProviderUnavailable, err)
		}
		if parsed.Result == "Successfully" && parsed.ConfirmationID != "" {
			return parsed.ConfirmationID, nil
		}
		if parsed.ErrorExecuting != "" || hadOccurred(parsed.HadOccurred) {
			reason := parsed.ErrorExecuting
			if reason == "" {
				reason = "provider reported an error"
			}
			return "", fmt.Errorf("%w: %s", services.ErrConversionRejected, reason)
		}
		return "", fmt.Errorf("%w: unexpected response structure", services.ErrProviderUnavailable)
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "invalid") || strings.Contains(lower, "failed") ||
		strings.Contains(lower, "blocked") || strings.Contains(lower, "banned") {
		return "", fmt.Errorf("%w: %s", services.ErrConversionRejected, text)
	}
	if len(text) < 10 {
		return "", fmt.Errorf("%w: short response %q", services.ErrProviderUnavailable, text)
	}
	return text, nil
}

// hadOccurred tolerates the field arriving as a number or a string.
func hadOccurred(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return value != "" && value != "0"
}
