package handlers

import (
	"sync/atomic"

	"github.com/kiro-gateway/gateway/internal/metrics"
)

// requestGuard unifies metrics.RequestGuard (non-streaming) and
// metrics.StreamingTracker (streaming) behind one interface so handlers
// don't need to branch on request mode when recording completion.
type requestGuard struct {
	inputTokens  int64
	nonStreaming *metrics.RequestGuard
	streaming    *metrics.StreamingTracker
}

// newRequestGuard starts tracking a request against model, choosing the
// streaming or non-streaming tracker to match the request. inputTokens
// must already be known (the tokenizer runs before the upstream call).
func (s *State) newRequestGuard(model string, streaming bool, inputTokens int64) *requestGuard {
	if s.Metrics == nil {
		return &requestGuard{inputTokens: inputTokens}
	}
	if streaming {
		return &requestGuard{inputTokens: inputTokens, streaming: metrics.NewStreamingTracker(s.Metrics, model, inputTokens)}
	}
	return &requestGuard{inputTokens: inputTokens, nonStreaming: metrics.NewRequestGuard(s.Metrics, model)}
}

// outputTokenCounter returns the atomic handle the streaming response
// emitters should add observed output tokens to. Safe to call on a
// non-streaming or metrics-disabled guard; returns a throwaway counter.
func (g *requestGuard) outputTokenCounter() *atomic.Int64 {
	if g.streaming != nil {
		return g.streaming.OutputTokens()
	}
	return new(atomic.Int64)
}

// complete records the request's final output token count (the input
// count was already fixed at construction). Idempotent.
func (g *requestGuard) complete(outputTokens int64) {
	switch {
	case g.nonStreaming != nil:
		g.nonStreaming.Complete(g.inputTokens, outputTokens)
	case g.streaming != nil:
		g.streaming.Close()
	}
}

// close releases the guard's active-connection slot if complete was never
// called. A non-streaming guard records no latency or token metrics here;
// a streaming guard's tracker Close also records latency and the tokens
// counted so far. Safe to call after complete (no-op).
func (g *requestGuard) close() {
	switch {
	case g.nonStreaming != nil:
		g.nonStreaming.Close()
	case g.streaming != nil:
		g.streaming.Close()
	}
}
