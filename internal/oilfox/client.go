package oilfox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Customer API endpoints.
const (
	LoginPath   = "/customer-api/v1/login"
	TokenPath   = "/customer-api/v1/token"
	DevicesPath = "/customer-api/v1/device"
)

// DefaultAddress is the host of the FoxInsights customer API.
const DefaultAddress = "api.oilfox.io"

// HTTP timeouts.
const (
	connectTimeout = 15 * time.Second
	readTimeout    = 10 * time.Second

	// requestTimeout bounds a whole exchange: connect, send, and read.
	requestTimeout = connectTimeout + readTimeout

	// maxResponseSize caps how much of a response body is decoded.
	maxResponseSize = 1 << 20
)

// Tokens is the token pair returned by the login and token endpoints.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ClientConfig configures the customer API client.
type ClientConfig struct {
	// Address is the API host (e.g. "api.oilfox.io"), or a full base URL
	// including the scheme.
	// Default: DefaultAddress
	Address string

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// Client performs requests against the FoxInsights customer API.
// It holds no token state; the caller passes the session it owns.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a customer API client.
//
// Parameters:
//   - cfg: Address and optional HTTP client
//
// Returns:
//   - *Client: Ready to use
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &Client{
		baseURL: baseURL(cfg.Address),
		http:    httpClient,
	}
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          4,
		},
	}
}

func baseURL(address string) string {
	if address == "" {
		address = DefaultAddress
	}
	if strings.Contains(address, "://") {
		return strings.TrimRight(address, "/")
	}
	return "https://" + strings.TrimRight(address, "/")
}

// BaseURL returns the URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges email and password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (Tokens, error) {
	body, err := json.Marshal(struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password})
	if err != nil {
		return Tokens{}, fmt.Errorf("encoding login request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, LoginPath, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var tokens Tokens
	if err := c.do(req, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("login: %w", err)
	}
	if err := tokens.validate(); err != nil {
		return Tokens{}, fmt.Errorf("login: %w", err)
	}
	return tokens, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (Tokens, error) {
	form := url.Values{"refresh_token": {refreshToken}}

	req, err := c.newRequest(ctx, http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokens Tokens
	if err := c.do(req, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("refresh token: %w", err)
	}
	if err := tokens.validate(); err != nil {
		return Tokens{}, fmt.Errorf("refresh token: %w", err)
	}
	return tokens, nil
}

// Devices fetches every device of the account using the session's access token.
func (c *Client) Devices(ctx context.Context, session *Session) ([]Device, error) {
	if session == nil || session.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}

	req, err := c.newRequest(ctx, http.MethodGet, DevicesPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	var resp struct {
		Items *[]Device `json:"items"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("device list: %w", err)
	}
	if resp.Items == nil {
		return nil, fmt.Errorf("device list: %w: response has no items", ErrCommunication)
	}

	devices := make([]Device, 0, len(*resp.Items))
	for _, d := range *resp.Items {
		if d.HWID == "" {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrCommunication, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 200 response into dest.
func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		//nolint:errcheck // Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return classifyStatus(resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(dest); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrCommunication, err)
	}
	return nil
}

func (t Tokens) validate() error {
	if t.AccessToken == "" || t.RefreshToken == "" {
		return fmt.Errorf("%w: response is missing tokens", ErrCommunication)
	}
	return nil
}
