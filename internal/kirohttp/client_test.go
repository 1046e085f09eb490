package kirohttp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenSource struct {
	token string
	calls atomic.Int64
}

func (s *staticTokenSource) GetAccessToken(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, nil
}

func TestBackoffDelay_DoublesWithJitterBound(t *testing.T) {
	c := New(&staticTokenSource{token: "t"}, 20, 30*time.Second, 300*time.Second, 3)

	d0 := c.backoffDelay(0)
	d1 := c.backoffDelay(1)
	d2 := c.backoffDelay(2)

	assert.True(t, d0 >= time.Second && d0 <= 1100*time.Millisecond, "d0=%v", d0)
	assert.True(t, d1 >= 2*time.Second && d1 <= 2200*time.Millisecond, "d1=%v", d1)
	assert.True(t, d2 >= 4*time.Second && d2 <= 4400*time.Millisecond, "d2=%v", d2)
}

func TestRequestWithRetry_SucceedsOnFirstTry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New(&staticTokenSource{token: "t"}, 20, time.Second, time.Second, 3)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.RequestWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestWithRetry_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(&staticTokenSource{token: "t"}, 20, time.Second, time.Second, 3)
	c.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.RequestWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRequestWithRetry_403RefreshesTokenAndRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ts := &staticTokenSource{token: "t"}
	c := New(ts, 20, time.Second, time.Second, 3)
	c.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.RequestWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, ts.calls.Load(), int64(1))
}

func TestRequestWithRetry_ExhaustsRetriesReturnsKiroAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("down"))
	}))
	defer server.Close()

	c := New(&staticTokenSource{token: "t"}, 20, time.Second, time.Second, 1)
	c.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = c.RequestWithRetry(context.Background(), req)
	require.Error(t, err)
	appErr := apierrors.AsAppError(err)
	assert.Equal(t, apierrors.TypeKiroAPI, appErr.ErrType)
	assert.Equal(t, http.StatusBadGateway, appErr.UpstreamStatus)
}

func TestRequestNoRetry_FailsFastWithoutRetrying(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(&staticTokenSource{token: "t"}, 20, time.Second, time.Second, 5)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = c.RequestNoRetry(context.Background(), req)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRequestWithRetry_ResendsBodyOnRetry(t *testing.T) {
	var calls atomic.Int64
	var lastBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		lastBody = string(buf[:n])
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(&staticTokenSource{token: "t"}, 20, time.Second, time.Second, 3)
	c.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodPost, server.URL, bytes.NewBufferString(`{"a":1}`))
	require.NoError(t, err)

	resp, err := c.RequestWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, `{"a":1}`, lastBody)
}
