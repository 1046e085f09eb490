package convert

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/kiro-gateway/gateway/internal/eventstream"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
)

// frameOrErr carries one decoded event-stream payload, or the terminal
// error/EOF that ended decoding.
type frameOrErr struct {
	payload []byte
	err     error
}

// decodeFrames runs the event-stream decoder on its own goroutine so the
// caller can apply a first-token timeout without blocking on a
// potentially slow network read.
func decodeFrames(body io.Reader) <-chan frameOrErr {
	out := make(chan frameOrErr)
	go func() {
		defer close(out)
		dec := eventstream.NewDecoder(body)
		for {
			payload, err := dec.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				out <- frameOrErr{err: err}
				return
			}
			out <- frameOrErr{payload: payload}
		}
	}()
	return out
}

// Flusher is the subset of http.Flusher the streaming emitters need.
type Flusher interface {
	Flush()
}

// SSEWriter writes Server-Sent-Events frames and flushes after each one.
type SSEWriter struct {
	w io.Writer
	f Flusher
}

// NewSSEWriter wraps w (and its optional flusher) for SSE output.
func NewSSEWriter(w io.Writer, f Flusher) *SSEWriter {
	return &SSEWriter{w: w, f: f}
}

// WriteEvent writes a "data: <payload>\n\n" SSE frame. If event is
// non-empty an "event: <event>\n" line precedes it (Anthropic dialect).
func (s *SSEWriter) WriteEvent(event string, data []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.f != nil {
		s.f.Flush()
	}
	return nil
}

// WriteDone writes the OpenAI dialect's terminal "data: [DONE]" frame.
func (s *SSEWriter) WriteDone() error {
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	if s.f != nil {
		s.f.Flush()
	}
	return err
}

// WriteError writes an error SSE frame in the shared `{"error":{...}}`
// body shape, used when the first-token timeout fires or the upstream
// fails mid-stream.
func (s *SSEWriter) WriteError(appErr *apierrors.AppError) error {
	return s.WriteEvent("", appErr.ToJSON())
}

// firstTokenTimeoutErr builds the error surfaced when no event arrives
// from the upstream within the configured window.
func firstTokenTimeoutErr(timeout time.Duration) *apierrors.AppError {
	return apierrors.Internal(fmt.Sprintf("no response from upstream within %s", timeout), nil)
}

// outputTokenCounter lets a streaming emitter record token output live,
// for the metrics collector's StreamingTracker (internal/metrics), without
// importing the metrics package here.
type outputTokenCounter = *atomic.Int64
