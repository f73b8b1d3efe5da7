// Package paypal is a small REST client for the PayPal endpoints used by
// billing: OAuth client credentials, checkout orders, billing subscriptions
// and webhook signature verification.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

const (
	DefaultAPIBase = "https://api-m.sandbox.paypal.com"

	tokenPath         = "/v1/oauth2/token"
	tokenExpiryMargin = 60 * time.Second
)

// ErrNotConfigured is returned when client id or secret are missing.
var ErrNotConfigured = errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")

// TokenCache stores access tokens between calls. Implementations must treat
// a miss as normal; correctness never depends on a hit.
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, bool)
	SetToken(ctx context.Context, key, token string, ttl time.Duration)
}

type Client struct {
	ClientID     string
	ClientSecret string
	APIBase      string
	WebhookID    string

	HTTPClient *http.Client
	// TokenCache is optional. When nil every operation fetches a fresh token.
	TokenCache TokenCache
}

// APIError is a non-2xx answer from PayPal.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %s failed: status=%d body=%s", e.Operation, e.StatusCode, e.Body)
}

// Link is a HATEOAS link returned by PayPal.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

func findLink(links []Link, rels ...string) string {
	for _, rel := range rels {
		for _, l := range links {
			if strings.EqualFold(l.Rel, rel) {
				return l.Href
			}
		}
	}
	return ""
}

func NewClient(clientID, clientSecret, apiBase, webhookID string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
		APIBase:      strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		WebhookID:    strings.TrimSpace(webhookID),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func NewClientFromEnv() *Client {
	return NewClient(
		env.GetEnv("PAYPAL_CLIENT_ID", ""),
		env.GetEnv("PAYPAL_CLIENT_SECRET", ""),
		env.GetEnv("PAYPAL_API_BASE", DefaultAPIBase),
		env.GetEnv("PAYPAL_WEBHOOK_ID", ""),
	)
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c *Client) tokenCacheKey() string {
	return "paypal:token:" + c.ClientID
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.TokenCache != nil {
		if token, ok := c.TokenCache.GetToken(ctx, c.tokenCacheKey()); ok {
			return token, nil
		}
	}

	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.APIBase + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	tok, err := cfg.Token(tokenCtx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &APIError{Operation: "oauth token", StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}
		return "", fmt.Errorf("paypal oauth token: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("paypal oauth token response missing access_token")
	}

	if c.TokenCache != nil && !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry) - tokenExpiryMargin; ttl > 0 {
			c.TokenCache.SetToken(ctx, c.tokenCacheKey(), tok.AccessToken, ttl)
		}
	}
	return tok.AccessToken, nil
}

// do performs an authenticated JSON call. A 204 leaves out untouched.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("paypal %s: encode request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("PayPal-Request-Id", uuid.NewString())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("[PayPal] %s returned status %d", operation, resp.StatusCode)
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("paypal %s: decode response: %w", operation, err)
	}
	return nil
}
