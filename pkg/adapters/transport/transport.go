// Package transport provides the http.RoundTripper used for every
// authenticated call to the backend.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Credentials is the session as seen by the transport. Refresh must
// coalesce concurrent callers into a single exchange with the backend.
type Credentials interface {
	Token(ctx context.Context) (*oauth2.Token, bool)
	Refresh(ctx context.Context, stale string) (*oauth2.Token, error)
	CanRefresh(ctx context.Context) bool
}

// Transport attaches the current bearer token and, on a 401, refreshes and
// retries the request once. The second response is returned as is.
type Transport struct {
	creds Credentials
	base  http.RoundTripper
}

func New(creds Credentials, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{creds: creds, base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	tok, _ := t.creds.Token(ctx)
	refreshed := false

	// Access token aged out while the refresh token is still good.
	if (tok == nil || !tok.Valid()) && t.creds.CanRefresh(ctx) {
		refreshed = true
		if fresh, err := t.creds.Refresh(ctx, accessToken(tok)); err == nil {
			tok = fresh
		} else {
			tok = nil
		}
	}

	resp, err := t.base.RoundTrip(authorize(req, tok))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshed || !t.creds.CanRefresh(ctx) {
		return resp, nil
	}

	fresh, err := t.creds.Refresh(ctx, accessToken(tok))
	if err != nil {
		// The session is gone; the caller sees the original rejection.
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return t.base.RoundTrip(authorize(retry, fresh))
}

func authorize(req *http.Request, tok *oauth2.Token) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Del("Authorization")
	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(out)
	}
	return out
}

func accessToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	return tok.AccessToken
}

// replayable makes sure the body can be sent twice.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.ContentLength = int64(len(data))
	return out, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}
