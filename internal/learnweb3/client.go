// Package learnweb3 is the client for the LearnWeb3 faucet API, which lists the
// supported test networks and dispenses test tokens.
package learnweb3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/reqid"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/goccy/go-json"
)

const (
	// DefaultTimeout bounds a single API call when Config.Timeout is unset.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 1 << 20
	maxLoggedBody    = 200
)

// ServiceError reports a transport or protocol failure talking to the API.
type ServiceError struct {
	Err        error
	Op         string
	StatusCode int
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("learnweb3 %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("learnweb3 %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client // optional; Timeout is ignored when set
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
}

// Client talks to the faucet API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a faucet API client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

type dripRequest struct {
	NetworkID string `json:"networkId"`
	Address   string `json:"address"`
}

type dripResponse struct {
	OK      *bool  `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type networksEnvelope struct {
	Networks []models.Network `json:"networks"`
}

// GetNetworks returns every network the faucet supports, in API order.
// The API may answer with a bare array or with {"networks": [...]}.
func (c *Client) GetNetworks(ctx context.Context) ([]models.Network, error) {
	const op = "get networks"

	status, body, err := c.do(ctx, http.MethodGet, "/networks", nil)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &ServiceError{Op: op, StatusCode: status, Err: fmt.Errorf("%s", errorText(status, body))}
	}

	body = bytes.TrimSpace(body)
	var networks []models.Network
	if len(body) > 0 && body[0] == '{' {
		var env networksEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &ServiceError{Op: op, StatusCode: status, Err: fmt.Errorf("decode: %w", err)}
		}
		networks = env.Networks
	} else if err := json.Unmarshal(body, &networks); err != nil {
		return nil, &ServiceError{Op: op, StatusCode: status, Err: fmt.Errorf("decode: %w", err)}
	}

	if networks == nil {
		networks = []models.Network{}
	}
	return networks, nil
}

// DripTokens asks the faucet to send the network's drip amount to recipient.
// Refusals by the API (unknown network, quota reached, empty faucet) come back
// as a DripResult with OK=false; only transport failures return an error.
func (c *Client) DripTokens(ctx context.Context, networkID, recipient string) (models.DripResult, error) {
	const op = "drip tokens"

	payload, err := json.Marshal(dripRequest{NetworkID: networkID, Address: recipient})
	if err != nil {
		return models.DripResult{}, &ServiceError{Op: op, Err: err}
	}

	status, body, err := c.do(ctx, http.MethodPost, "/drip", payload)
	if err != nil {
		return models.DripResult{}, &ServiceError{Op: op, Err: err}
	}

	var resp dripResponse
	decodeErr := json.Unmarshal(body, &resp)

	if status >= 200 && status <= 299 {
		if decodeErr != nil && len(bytes.TrimSpace(body)) > 0 {
			reqid.Logger(ctx).Debug().
				Err(decodeErr).
				Int("status", status).
				Str("body", truncate(string(body), maxLoggedBody)).
				Msg("Drip response is not JSON, treating as accepted")
		}
		if resp.OK != nil && !*resp.OK {
			return models.DripResult{OK: false, Error: firstNonEmpty(resp.Error, resp.Message, "request rejected")}, nil
		}
		return models.DripResult{OK: true}, nil
	}

	return models.DripResult{OK: false, Error: errorText(status, body)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id := reqid.FromContext(ctx); id != "" {
		req.Header.Set(reqid.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}

	reqid.Logger(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Faucet API call")

	return resp.StatusCode, body, nil
}

// errorText extracts a human-readable error from an API error body.
func errorText(status int, body []byte) string {
	var resp dripResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg := firstNonEmpty(resp.Error, resp.Message); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
