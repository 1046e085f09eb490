// Package kirohttp is the gateway's outbound HTTP client to the Kiro
// CodeWhisperer API: connection-pooled, with built-in retry/backoff and a
// token re-fetch before retrying a 403.
package kirohttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	apierrors "github.com/kiro-gateway/gateway/internal/errors"
)

// TokenSource supplies a valid bearer token, refreshing as needed. Satisfied
// by *authmanager.Manager.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Client wraps an http.Client with retry/backoff and 403 token re-fetch
// handling for calls to the Kiro API.
type Client struct {
	httpClient *http.Client
	auth       TokenSource
	maxRetries int
	baseDelay  time.Duration
}

// New builds a Client with the given connection pool and timeout settings.
func New(auth TokenSource, maxConnections int, connectTimeout, requestTimeout time.Duration, maxRetries int) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxConnections,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
		auth:       auth,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
	}
}

// RequestWithRetry executes req, retrying on 403, 429 and 5xx, and
// transport-level errors, up to maxRetries retries in all. Before retrying a
// 403 it re-fetches the token from the TokenSource and rewrites the
// Authorization header; it does not force a refresh, so the token changes
// only if the source refreshes it on its own (e.g. near expiry). 429, 5xx
// and transport errors are retried with exponential backoff.
func (c *Client) RequestWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.do(ctx, req, true)
}

// RequestNoRetry executes req and fails fast on any error. Intended for
// startup calls (e.g. populating the model catalog) where a slow retry loop
// would only delay an otherwise-clear failure.
func (c *Client) RequestNoRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.do(ctx, req, false)
}

func (c *Client) do(ctx context.Context, req *http.Request, enableRetry bool) (*http.Response, error) {
	maxRetries := 0
	if enableRetry {
		maxRetries = c.maxRetries
	}

	attempt := 0
	for {
		attemptReq, err := cloneRequest(req)
		if err != nil {
			return nil, apierrors.Internal("request body is not cloneable", err)
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			if attempt < maxRetries {
				if waitErr := c.sleepBackoff(ctx, attempt); waitErr != nil {
					return nil, waitErr
				}
				attempt++
				continue
			}
			return nil, apierrors.Internal(fmt.Sprintf("http request failed: %v", err), err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if resp.StatusCode == http.StatusForbidden && attempt < maxRetries {
			resp.Body.Close()
			token, tokenErr := c.auth.GetAccessToken(ctx)
			if tokenErr != nil {
				return nil, apierrors.Auth(fmt.Sprintf("token refresh failed: %v", tokenErr), tokenErr)
			}
			req.Header.Set("Authorization", "Bearer "+token)
			attempt++
			continue
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxRetries {
			resp.Body.Close()
			if waitErr := c.sleepBackoff(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			attempt++
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierrors.KiroAPIError(resp.StatusCode, string(body))
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(c.backoffDelay(attempt)):
		return nil
	case <-ctx.Done():
		return apierrors.Internal("http request cancelled", ctx.Err())
	}
}

// backoffDelay computes base*2^attempt plus up to 10% additive jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<uint(attempt))
	jitter := time.Duration(float64(delay) * 0.1 * rand.Float64())
	return delay + jitter
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("request body is not cloneable")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
