// Package broker is a REST client for a retail brokerage API: password + TOTP
// login, token refresh, price history, quotes, order placement and order status.
//
// Usage example:
//
//	c := broker.New(broker.Config{APIKey: "key", AccountID: "123456789"})
//	if err := c.Login(ctx, "user", "password", os.Getenv("BROKER_TOTP_SECRET")); err != nil {
//		log.Fatal(err)
//	}
//	bars, err := c.PriceHistory(ctx, broker.HistoryRequest{Symbol: "FCEL", Start: start, End: end, Frequency: 1, FrequencyType: "minute"})
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrSession is returned when the broker rejects the access token.
var ErrSession = errors.New("broker session expired")

// Config configures a Client.
type Config struct {
	APIKey       string
	AccountID    string
	AccessToken  string
	RefreshToken string

	RootURL string        // default: https://api.broker.example
	Timeout time.Duration // default: 7s
	Debug   bool
	Accept  string // default: application/json
}

// Client talks to the broker REST API. Safe for concurrent use.
type Client struct {
	apiKey    string
	accountID string
	rootURL   string
	accept    string
	debug     bool

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	userID       string

	httpClient *http.Client

	// Optional callback when the broker answers 401/403 with a token error.
	SessionExpiryHook func()
}

const defaultRoot = "https://api.broker.example"

var routes = map[string]string{
	"api.login":   "/v1/auth/login",
	"api.refresh": "/v1/auth/token",
	"api.logout":  "/v1/auth/logout",
	"api.profile": "/v1/user/profile",

	"api.order.place":  "/v1/accounts/{account}/orders",
	"api.order.status": "/v1/accounts/{account}/orders/{id}",
	"api.order.cancel": "/v1/accounts/{account}/orders/{id}/cancel",

	"api.price.history": "/v1/marketdata/{symbol}/pricehistory",
	"api.quotes":        "/v1/marketdata/quotes",
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	return &Client{
		apiKey:       cfg.APIKey,
		accountID:    cfg.AccountID,
		rootURL:      strings.TrimRight(cfg.RootURL, "/"),
		accept:       cfg.Accept,
		debug:        cfg.Debug,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// ---- Helpers ----

// envelope is the common response wrapper: {"status":true,"message":"","errorType":"","data":{...}}.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"errorType"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", c.accept)
	h.Set("Accept", c.accept)
	h.Set("X-API-Key", c.apiKey)
	if tok := c.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

func (c *Client) buildURL(route string, vars map[string]string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	uri = strings.ReplaceAll(uri, "{account}", url.PathEscape(c.accountID))
	for k, v := range vars {
		uri = strings.ReplaceAll(uri, "{"+k+"}", url.PathEscape(v))
	}
	return c.rootURL + uri, nil
}

// doRequest sends params as a query string (GET) or JSON body (POST) and
// decodes the envelope's data into out (if non-nil).
func (c *Client) doRequest(ctx context.Context, method, route string, vars map[string]string, params map[string]any, out any) error {
	fullURL, err := c.buildURL(route, vars)
	if err != nil {
		return err
	}

	var body io.Reader
	reqURL := fullURL
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, toString(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", route, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Printf("[broker] request: %s %s", method, reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if c.debug {
		log.Printf("[broker] response: code=%d body=%s", resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("couldn't parse JSON response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || env.ErrorType == "TokenException" {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("%w: %s", ErrSession, env.Message)
	}
	if env.ErrorType != "" {
		return fmt.Errorf("%s: %s", env.ErrorType, env.Message)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%s failed (status %d): %s", route, resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", route, err)
		}
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ---- Setters/Getters ----

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if access != "" {
		c.accessToken = access
	}
	if refresh != "" {
		c.refreshToken = refresh
	}
}
