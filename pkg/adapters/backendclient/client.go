// Package backendclient is a typed client for the shortener backend API.
//
// The same client serves both the unauthenticated auth endpoints and the
// link endpoints; which credentials are sent depends only on the
// http.Client it is given.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var res domain.AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*domain.AuthResult, error) {
	var res domain.AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	var res domain.TokenPair
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ClaimLinks(ctx context.Context, accessToken, anonymousID string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/claim-links", accessToken, map[string]string{
		"anonymous_id": anonymousID,
	}, nil)
}

func (c *Client) Shorten(ctx context.Context, originalURL, anonymousID string) (*domain.ShortenResult, error) {
	body := map[string]string{"url": originalURL}
	if anonymousID != "" {
		body["anonymous_id"] = anonymousID
	}

	var res domain.ShortenResult
	if err := c.do(ctx, http.MethodPost, "/api/shorten", "", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListLinks(ctx context.Context, anonymousID string) (*domain.LinkList, error) {
	path := "/api/urls"
	if anonymousID != "" {
		path += "?" + url.Values{"anonymous_id": {anonymousID}}.Encode()
	}

	var res domain.LinkList
	if err := c.do(ctx, http.MethodGet, path, "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	var res domain.Link
	if err := c.do(ctx, http.MethodGet, "/api/urls/"+url.PathEscape(code), "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrUpstreamUnavailable, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.BackendError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// errorMessage picks the backend's human readable message out of an error body.
func errorMessage(status int, raw []byte) string {
	for _, field := range []string{"error", "message"} {
		if msg := gjson.GetBytes(raw, field); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !gjson.ValidBytes(raw) {
		return text
	}
	return http.StatusText(status)
}

var (
	_ ports.AuthAPI = (*Client)(nil)
	_ ports.LinkAPI = (*Client)(nil)
)
