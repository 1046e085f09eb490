package authmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport redirects every request to target, regardless of the
// request's original host, so refresh flows that hardcode AWS/Kiro URLs can
// be pointed at a local httptest server.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	clone.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newRedirectedManager(t *testing.T, server *httptest.Server, refreshThreshold time.Duration) *Manager {
	t.Helper()
	m := NewForTesting("stale-token", "us-east-1", refreshThreshold)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	m.SetTransportForTesting(&rewriteTransport{target: target})
	return m
}

func TestGetAccessToken_ReturnsCurrentTokenWhenFresh(t *testing.T) {
	m := NewForTesting("fresh-token", "us-east-1", 5*time.Minute)
	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestGetAccessToken_RefreshesWhenExpiringSoon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"new-token","refreshToken":"new-refresh","expiresIn":3600}`))
	}))
	defer server.Close()

	m := newRedirectedManager(t, server, 24*time.Hour)
	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
}

func TestGetAccessToken_DegradesGracefullyWhenRefreshFailsButNotExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream unavailable`))
	}))
	defer server.Close()

	m := NewForTesting("stale-but-valid", "us-east-1", 24*time.Hour)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	m.SetTransportForTesting(&rewriteTransport{target: target})
	m.expiresAt = time.Now().Add(10 * time.Minute)

	token, err := m.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale-but-valid", token)
}

func TestGetAccessToken_FailsWhenRefreshFailsAndTokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := NewForTesting("expired-token", "us-east-1", 24*time.Hour)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	m.SetTransportForTesting(&rewriteTransport{target: target})
	m.expiresAt = time.Now().Add(-time.Minute)

	_, err = m.GetAccessToken(context.Background())
	require.Error(t, err)
}

func TestIsTokenExpiringSoon(t *testing.T) {
	m := NewForTesting("token", "us-east-1", 5*time.Minute)
	m.expiresAt = time.Now().Add(10 * time.Minute)
	assert.False(t, m.isTokenExpiringSoon())

	m.expiresAt = time.Now().Add(2 * time.Minute)
	assert.True(t, m.isTokenExpiringSoon())
}

func TestIsTokenExpired(t *testing.T) {
	m := NewForTesting("token", "us-east-1", 5*time.Minute)
	m.expiresAt = time.Now().Add(-time.Minute)
	assert.True(t, m.isTokenExpired())

	m.expiresAt = time.Time{}
	assert.True(t, m.isTokenExpired())
}

func TestGetRegionAndProfileArn(t *testing.T) {
	m := NewForTesting("token", "us-east-1", 5*time.Minute)
	assert.Equal(t, "us-east-1", m.GetRegion())
	assert.Equal(t, "", m.GetProfileArn())
}
