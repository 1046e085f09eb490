package debuglog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_OffModeWritesNothing(t *testing.T) {
	dir := t.TempDir()
	r := New(config.DebugOff, dir, "")
	rl := r.ForRequest("req-1")
	rl.ClientBody([]byte(`{"a":1}`))
	rl.Error(errors.New("boom"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_AllModeWritesImmediately(t *testing.T) {
	dir := t.TempDir()
	r := New(config.DebugAll, dir, "")
	rl := r.ForRequest("req-2")
	rl.ClientBody([]byte(`{"a":1}`))

	data, err := os.ReadFile(filepath.Join(dir, "req-2", "client_body.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a":1`)
}

func TestRecorder_ErrorsModeBuffersUntilError(t *testing.T) {
	dir := t.TempDir()
	r := New(config.DebugErrors, dir, "")
	rl := r.ForRequest("req-3")
	rl.ClientBody([]byte(`{"a":1}`))

	_, err := os.Stat(filepath.Join(dir, "req-3", "client_body.json"))
	assert.True(t, os.IsNotExist(err))

	rl.Error(errors.New("boom"))

	data, err := os.ReadFile(filepath.Join(dir, "req-3", "client_body.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a":1`)

	descriptor, err := os.ReadFile(filepath.Join(dir, "req-3", "error.json"))
	require.NoError(t, err)
	assert.Contains(t, string(descriptor), "boom")
}

func TestRecorder_ErrorsModeNeverFlushedIsInvisible(t *testing.T) {
	dir := t.TempDir()
	r := New(config.DebugErrors, dir, "")
	rl := r.ForRequest("req-4")
	rl.KiroPayload([]byte(`{}`))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
