package kirocreds

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T, tokenKey, registrationKey, tokenJSON, registrationJSON string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiro-auth.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE auth_kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO auth_kv (key, value) VALUES (?, ?)", tokenKey, tokenJSON)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO auth_kv (key, value) VALUES (?, ?)", registrationKey, registrationJSON)
	require.NoError(t, err)

	return path
}

func TestLoadFromSQLite_PrimaryKeyPrefix(t *testing.T) {
	path := newTestStore(t, "kirocli:odic:token", "kirocli:odic:device-registration",
		`{"access_token":"at","refresh_token":"rt","expires_at":"2025-01-12T10:30:00Z","region":"us-west-2"}`,
		`{"client_id":"cid","client_secret":"csecret","region":"us-west-2"}`)

	creds, err := LoadFromSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", creds.RefreshToken)
	assert.Equal(t, "at", creds.AccessToken)
	assert.Equal(t, "us-east-1", creds.Region, "API region is always forced to us-east-1")
	assert.Equal(t, "us-west-2", creds.SSORegion)
	assert.Equal(t, "cid", creds.ClientID)
	assert.Equal(t, "csecret", creds.ClientSecret)
	assert.Equal(t, time.Date(2025, 1, 12, 10, 30, 0, 0, time.UTC), creds.ExpiresAt.UTC())
}

func TestLoadFromSQLite_FallsBackToLegacyKeyPrefix(t *testing.T) {
	path := newTestStore(t, "codewhisperer:odic:token", "codewhisperer:odic:device-registration",
		`{"access_token":"at","refresh_token":"rt"}`,
		`{"client_id":"cid","client_secret":"csecret"}`)

	creds, err := LoadFromSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", creds.RefreshToken)
}

func TestLoadFromSQLite_MissingRefreshTokenFails(t *testing.T) {
	path := newTestStore(t, "kirocli:odic:token", "kirocli:odic:device-registration",
		`{"access_token":"at"}`, `{"client_id":"cid","client_secret":"csecret"}`)

	_, err := LoadFromSQLite(path)
	require.Error(t, err)
}

func TestLoadFromSQLite_SSORegionFallsBackToRegistration(t *testing.T) {
	path := newTestStore(t, "kirocli:odic:token", "kirocli:odic:device-registration",
		`{"access_token":"at","refresh_token":"rt"}`,
		`{"client_id":"cid","client_secret":"csecret","region":"eu-west-1"}`)

	creds, err := LoadFromSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", creds.SSORegion)
}

func TestParseDateTime(t *testing.T) {
	dt, err := parseDateTime("2025-01-12T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-12T10:30:00Z", dt.UTC().Format(time.RFC3339))

	dt, err = parseDateTime("2025-01-12T10:30:00+00:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-12T10:30:00Z", dt.UTC().Format(time.RFC3339))
}

func TestDetectAuthType(t *testing.T) {
	creds := Credentials{RefreshToken: "rt", ClientID: "cid", ClientSecret: "secret"}
	assert.Equal(t, AuthTypeAwsSsoOidc, DetectAuthType(creds))

	creds2 := Credentials{RefreshToken: "rt"}
	assert.Equal(t, AuthTypeKiroDesktop, DetectAuthType(creds2))
}
