// Package kirocreds reads Kiro CLI's OAuth credentials out of its read-only
// SQLite store, the same on-disk format kiro-cli itself maintains.
package kirocreds

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AuthType identifies which refresh flow a credential set belongs to.
type AuthType string

const (
	AuthTypeKiroDesktop AuthType = "kiro_desktop"
	AuthTypeAwsSsoOidc  AuthType = "aws_sso_oidc"
)

// Credentials is the complete credential set read from the store.
type Credentials struct {
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
	ProfileArn   string

	// Region is always forced to us-east-1: the Kiro CodeWhisperer API is
	// only available in that region regardless of where the SSO session
	// lives.
	Region string

	ClientID     string
	ClientSecret string
	SSORegion    string
	Scopes       []string
}

// DetectAuthType reports which refresh flow applies to creds. kiro-cli
// credentials always carry SSO OIDC client credentials; the Kiro Desktop
// flow is kept for completeness but is never produced by LoadFromSQLite.
func DetectAuthType(creds Credentials) AuthType {
	if creds.ClientID != "" && creds.ClientSecret != "" {
		return AuthTypeAwsSsoOidc
	}
	return AuthTypeKiroDesktop
}

type sqliteTokenData struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    string   `json:"expires_at"`
	Region       string   `json:"region"`
	Scopes       []string `json:"scopes"`
}

type sqliteDeviceRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Region       string `json:"region"`
}

var tokenKeys = []string{"kirocli:odic:token", "codewhisperer:odic:token"}
var registrationKeys = []string{"kirocli:odic:device-registration", "codewhisperer:odic:device-registration"}

// LoadFromSQLite opens the kiro-cli credential database read-only and
// assembles a Credentials value from its token and device-registration
// rows. Both rows are looked up under the kirocli: key prefix first, falling
// back to the legacy codewhisperer: prefix.
func LoadFromSQLite(path string) (*Credentials, error) {
	dsn := path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	defer db.Close()

	tokenJSON, err := queryFirstMatch(db, tokenKeys)
	if err != nil {
		return nil, fmt.Errorf("load token data: %w", err)
	}
	var token sqliteTokenData
	if err := json.Unmarshal([]byte(tokenJSON), &token); err != nil {
		return nil, fmt.Errorf("parse token data: %w", err)
	}

	registrationJSON, err := queryFirstMatch(db, registrationKeys)
	if err != nil {
		return nil, fmt.Errorf("load device registration: %w", err)
	}
	var registration sqliteDeviceRegistration
	if err := json.Unmarshal([]byte(registrationJSON), &registration); err != nil {
		return nil, fmt.Errorf("parse device registration: %w", err)
	}

	if token.RefreshToken == "" {
		return nil, errors.New("credential store token data has no refresh_token")
	}

	var expiresAt time.Time
	if token.ExpiresAt != "" {
		if t, err := parseDateTime(token.ExpiresAt); err == nil {
			expiresAt = t
		}
	}

	ssoRegion := token.Region
	if ssoRegion == "" {
		ssoRegion = registration.Region
	}

	return &Credentials{
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		ExpiresAt:    expiresAt,
		Region:       "us-east-1",
		ClientID:     registration.ClientID,
		ClientSecret: registration.ClientSecret,
		SSORegion:    ssoRegion,
		Scopes:       token.Scopes,
	}, nil
}

func queryFirstMatch(db *sql.DB, keys []string) (string, error) {
	var value string
	var lastErr error
	for _, key := range keys {
		err := db.QueryRow("SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// parseDateTime parses an RFC3339 timestamp, accepting both a literal "Z"
// UTC suffix and numeric offsets.
func parseDateTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
