// Package homeassistant is a small client for the Home Assistant REST API.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

// APIError はHome Assistantが2xx以外を返した場合のエラー。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("home assistant returned status %d: %s", e.StatusCode, e.Body)
}

// TurnOnRequest is the service data of light.turn_on.
type TurnOnRequest struct {
	EntityID   string   `json:"entity_id"`
	Transition float64  `json:"transition"`
	RGBColor   [3]uint8 `json:"rgb_color"`
	Brightness uint8    `json:"brightness"`
}

// Client talks to one Home Assistant instance. apiURL is the API root,
// e.g. "http://homeassistant.local:8123/api".
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The default has no
// timeout: light calls are allowed to take as long as they take.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(apiURL, token string, opts ...Option) (*Client, error) {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid home assistant url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid home assistant url scheme %q", u.Scheme)
	}
	if token == "" {
		return nil, errors.New("home assistant token is empty")
	}

	c := &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping checks that the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

// CallService invokes POST /services/{domain}/{service} with data as JSON body.
func (c *Client) CallService(ctx context.Context, domain, service string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal service data: %w", err)
	}

	path := fmt.Sprintf("/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	logger.Debug("Home Assistant service call",
		zap.String("domain", domain),
		zap.String("service", service),
		zap.String("body", string(body)))

	return c.do(req)
}

// TurnOn calls {domain}.turn_on.
func (c *Client) TurnOn(ctx context.Context, domain string, r TurnOnRequest) error {
	return c.CallService(ctx, domain, "turn_on", r)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
