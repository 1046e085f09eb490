// Package authmanager owns the Kiro access token's lifecycle: reading
// credentials, refreshing ahead of expiry, and degrading gracefully when a
// refresh attempt fails but the current token is still usable.
package authmanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kiro-gateway/gateway/internal/kirocreds"
	"golang.org/x/sync/singleflight"
)

// Manager serializes token refreshes behind a singleflight group so that N
// concurrent requests hitting an expiring token trigger exactly one refresh
// call, and serves graceful degradation when that refresh fails.
type Manager struct {
	mu sync.RWMutex

	creds       kirocreds.Credentials
	accessToken string
	expiresAt   time.Time

	authType kirocreds.AuthType
	client   *httpDoer
	sqliteDB string

	refreshThreshold time.Duration

	sf singleflight.Group
}

// New loads credentials from the kiro-cli SQLite store at sqliteDB and
// builds a Manager around them.
func New(sqliteDB string, refreshThreshold time.Duration) (*Manager, error) {
	creds, err := kirocreds.LoadFromSQLite(sqliteDB)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return newManager(*creds, sqliteDB, refreshThreshold), nil
}

// NewForTesting builds a Manager around synthetic credentials, bypassing
// SQLite entirely.
func NewForTesting(accessToken, region string, refreshThreshold time.Duration) *Manager {
	creds := kirocreds.Credentials{
		RefreshToken: "test-refresh-token",
		AccessToken:  accessToken,
		ExpiresAt:    time.Now().Add(time.Hour),
		Region:       region,
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		SSORegion:    region,
	}
	return newManager(creds, "", refreshThreshold)
}

func newManager(creds kirocreds.Credentials, sqliteDB string, refreshThreshold time.Duration) *Manager {
	return &Manager{
		creds:            creds,
		accessToken:      creds.AccessToken,
		expiresAt:        creds.ExpiresAt,
		authType:         kirocreds.DetectAuthType(creds),
		client:           newHTTPDoer(30 * time.Second),
		sqliteDB:         sqliteDB,
		refreshThreshold: refreshThreshold,
	}
}

func (m *Manager) isTokenExpiringSoon() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expiresAt.IsZero() {
		return true
	}
	return !m.expiresAt.After(time.Now().Add(m.refreshThreshold))
}

func (m *Manager) isTokenExpired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(m.expiresAt)
}

// GetAccessToken returns a valid access token, refreshing first if it is
// expiring within the configured threshold. If the refresh attempt fails but
// the current token has not yet actually expired, the stale token is
// returned rather than failing the caller's request outright.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if m.isTokenExpiringSoon() {
		_, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
			return nil, m.refresh(ctx)
		})
		if err != nil {
			if !m.isTokenExpired() {
				if token := m.currentAccessToken(); token != "" {
					return token, nil
				}
			}
			return "", fmt.Errorf("refresh token and no valid token available: %w", err)
		}
	}

	if token := m.currentAccessToken(); token != "" {
		return token, nil
	}
	return "", errors.New("no access token available")
}

func (m *Manager) currentAccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// SetTransportForTesting swaps the manager's underlying HTTP transport,
// letting tests redirect refresh calls to a local httptest server.
func (m *Manager) SetTransportForTesting(rt interface{ RoundTrip(*http.Request) (*http.Response, error) }) {
	m.client.client.Transport = rt
}

// GetRegion returns the (always us-east-1) CodeWhisperer API region.
func (m *Manager) GetRegion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.Region
}

// GetProfileArn returns the last known profile ARN, if any.
func (m *Manager) GetProfileArn() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.ProfileArn
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.RLock()
	creds := m.creds
	authType := m.authType
	m.mu.RUnlock()

	data, err := m.refreshWithRetry(ctx, authType, &creds)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.accessToken = data.AccessToken
	m.expiresAt = data.ExpiresAt
	if data.RefreshToken != "" {
		m.creds.RefreshToken = data.RefreshToken
	}
	if data.ProfileArn != "" {
		m.creds.ProfileArn = data.ProfileArn
	}
	m.mu.Unlock()
	return nil
}

// refreshWithRetry performs one refresh attempt. If it fails with an
// upstream 400 and credentials came from SQLite, it reloads the store once
// (the refresh token may have been rotated out from under us by kiro-cli)
// and retries exactly once.
func (m *Manager) refreshWithRetry(ctx context.Context, authType kirocreds.AuthType, creds *kirocreds.Credentials) (*tokenData, error) {
	data, err := m.doRefresh(ctx, authType, creds)
	if err == nil || m.sqliteDB == "" || !strings.Contains(err.Error(), "400") {
		return data, err
	}

	reloaded, reloadErr := kirocreds.LoadFromSQLite(m.sqliteDB)
	if reloadErr != nil {
		return nil, fmt.Errorf("reload credentials from sqlite after 400: %w", reloadErr)
	}
	*creds = *reloaded
	return m.doRefresh(ctx, authType, creds)
}

func (m *Manager) doRefresh(ctx context.Context, authType kirocreds.AuthType, creds *kirocreds.Credentials) (*tokenData, error) {
	switch authType {
	case kirocreds.AuthTypeKiroDesktop:
		return refreshKiroDesktop(ctx, m.client, creds)
	default:
		return refreshAwsSsoOidc(ctx, m.client, creds)
	}
}
