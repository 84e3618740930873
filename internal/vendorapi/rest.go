package vendorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"laundry-fleet-backend/config"
)

// Client issues authenticated requests against the vendor machine API.
// Transport-level failures and 5xx responses are retried with bounded
// backoff; 4xx responses fail immediately. Error messages carry the HTTP
// status but never the vendor response body.
type Client struct {
	cfg    *config.VendorConfig
	client *http.Client
}

// NewClient creates a vendor API client from configuration.
func NewClient(cfg *config.VendorConfig) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Vendor client will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
	}
}

// do performs one authenticated request with retry on transport errors and
// 5xx responses. The response body is returned only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	backoff := time.Duration(c.cfg.RetryBackoffMillis) * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.RequestTimeoutSeconds)*time.Second)
		data, retryable, err := c.doOnce(reqCtx, method, path, body)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
		log.Printf("vendor API %s %s failed (attempt %d/%d): %v", method, path, attempt+1, c.cfg.RetryMax+1, err)
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("vendor API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("vendor API %s %s: reading response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode >= 500:
		// Response bodies are deliberately kept out of the error text.
		return nil, true, fmt.Errorf("vendor API %s %s: status %d", method, path, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("vendor API %s %s: status %d", method, path, resp.StatusCode)
	}
}

// ListLocations fetches the vendor's site list.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	data, err := c.do(ctx, http.MethodGet, "/locations", nil)
	if err != nil {
		return nil, err
	}

	var locations []Location
	if err := json.Unmarshal(bytes.TrimSpace(data), &locations); err == nil {
		return locations, nil
	}
	var envelope struct {
		Data []Location `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		return envelope.Data, nil
	}
	return []Location{}, nil
}

// ListMachines fetches the status of every machine at a site.
func (c *Client) ListMachines(ctx context.Context, siteID string) ([]Machine, error) {
	data, err := c.do(ctx, http.MethodGet, "/locations/"+url.PathEscape(siteID)+"/machines", nil)
	if err != nil {
		return nil, err
	}
	return decodeMachines(data), nil
}

// GetMachine fetches a single machine's status.
func (c *Client) GetMachine(ctx context.Context, siteID, deviceID string) (Machine, bool, error) {
	path := "/locations/" + url.PathEscape(siteID) + "/machines/" + url.PathEscape(deviceID)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Machine{}, false, err
	}
	machines := decodeMachines(data)
	if len(machines) == 0 {
		return Machine{}, false, nil
	}
	return machines[0], true, nil
}

// SendCommand posts a remote command payload for one machine.
func (c *Client) SendCommand(ctx context.Context, siteID, deviceID string, payload any) (CommandResult, error) {
	path := "/locations/" + url.PathEscape(siteID) + "/machines/" + url.PathEscape(deviceID) + "/commands"
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return CommandResult{}, err
	}

	var result CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		return CommandResult{}, fmt.Errorf("vendor API POST %s: unexpected response shape", path)
	}
	return result, nil
}

// GetCommandStatus fetches the completion status of a previously issued
// command.
func (c *Client) GetCommandStatus(ctx context.Context, siteID, deviceID, commandID string) (CommandResult, error) {
	path := "/locations/" + url.PathEscape(siteID) + "/machines/" + url.PathEscape(deviceID) +
		"/commands/" + url.PathEscape(commandID)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return CommandResult{}, err
	}

	var result CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		return CommandResult{}, fmt.Errorf("vendor API GET %s: unexpected response shape", path)
	}
	return result, nil
}

// ListCycles fetches the cycle definitions available on one machine.
func (c *Client) ListCycles(ctx context.Context, siteID, deviceID string) ([]Cycle, error) {
	path := "/locations/" + url.PathEscape(siteID) + "/machines/" + url.PathEscape(deviceID) + "/cycles"
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var cycles []Cycle
	if err := json.Unmarshal(bytes.TrimSpace(data), &cycles); err == nil {
		return cycles, nil
	}
	var envelope struct {
		Data []Cycle `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		return envelope.Data, nil
	}
	return []Cycle{}, nil
}

// RealtimeAuth exchanges the API credential for a realtime session token.
func (c *Client) RealtimeAuth(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/realtime/auth", struct{}{})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Token == "" {
		return "", fmt.Errorf("vendor API POST /realtime/auth: unexpected response shape")
	}
	return resp.Token, nil
}
