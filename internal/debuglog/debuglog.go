// Package debuglog writes per-request debug artifacts to disk when
// DEBUG_MODE is enabled: the raw client body, the translated Kiro payload,
// the raw and decoded event-stream frames, and (on error) a JSON error
// descriptor. It is never required to serve a request; failures to write
// are logged and otherwise ignored.
package debuglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Recorder is the package's entry point: one Recorder is constructed at
// startup and shared across requests.
type Recorder struct {
	mode    config.DebugMode
	baseDir string
	combined *lumberjack.Logger
}

// New builds a Recorder. combinedLogPath may be empty, in which case no
// rotated combined log is written (only the per-request directories).
func New(mode config.DebugMode, baseDir, combinedLogPath string) *Recorder {
	r := &Recorder{mode: mode, baseDir: baseDir}
	if mode != config.DebugOff && combinedLogPath != "" {
		r.combined = &lumberjack.Logger{
			Filename:   combinedLogPath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
	}
	return r
}

// ForRequest starts a per-request debug capture. Returns a RequestLog that
// buffers writes in DebugErrors mode (flushed only if Error is called) and
// writes immediately in DebugAll mode. In DebugOff mode every method on the
// returned RequestLog is a no-op.
func (r *Recorder) ForRequest(requestID string) *RequestLog {
	return &RequestLog{recorder: r, requestID: requestID}
}

// RequestLog captures debug artifacts for a single request.
type RequestLog struct {
	recorder  *Recorder
	requestID string

	mu      sync.Mutex
	buf     []entry
	flushed bool
}

type entry struct {
	name string
	data []byte
}

// ClientBody records the raw client request body, redacting known-sensitive
// JSON fields before it ever reaches disk.
func (l *RequestLog) ClientBody(body []byte) {
	l.record("client_body.json", util.RedactSensitiveJSON(body))
}

// KiroPayload records the translated upstream payload.
func (l *RequestLog) KiroPayload(body []byte) {
	l.record("kiro_payload.json", util.RedactSensitiveJSON(body))
}

// RawFrame appends a raw event-stream frame to the request's frame log.
func (l *RequestLog) RawFrame(frame []byte) {
	l.record("frames.raw.log", append(append([]byte{}, frame...), '\n'))
}

// DecodedFrame appends a JSON-rendered decoded event-stream frame.
func (l *RequestLog) DecodedFrame(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	l.record("frames.decoded.log", append(data, '\n'))
}

// Error records a terminal error for the request and, in DebugErrors mode,
// flushes every buffered artifact collected so far.
func (l *RequestLog) Error(err error) {
	if l == nil || l.recorder == nil || l.recorder.mode == config.DebugOff {
		return
	}
	descriptor, _ := json.Marshal(map[string]any{
		"request_id": l.requestID,
		"error":      err.Error(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
	l.record("error.json", descriptor)
	l.flush()
}

func (l *RequestLog) record(name string, data []byte) {
	if l == nil || l.recorder == nil || l.recorder.mode == config.DebugOff {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recorder.mode == config.DebugAll {
		l.writeOne(name, data)
		return
	}
	l.buf = append(l.buf, entry{name: name, data: data})
}

// flush takes l.mu itself; callers must not hold it.
func (l *RequestLog) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flushed {
		return
	}
	l.flushed = true
	for _, e := range l.buf {
		l.writeOne(e.name, e.data)
	}
	l.buf = nil
}

func (l *RequestLog) writeOne(name string, data []byte) {
	dir := filepath.Join(l.recorder.baseDir, l.requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("debuglog: failed to create request directory")
		return
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.WithError(err).Warn("debuglog: failed to open artifact file")
		return
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		log.WithError(err).Warn("debuglog: failed to write artifact")
	}

	if l.recorder.combined != nil {
		fmt.Fprintf(l.recorder.combined, "[%s] %s: %d bytes\n", l.requestID, name, len(data))
	}
}
