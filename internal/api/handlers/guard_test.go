package handlers

import (
	"testing"

	"github.com/kiro-gateway/gateway/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestRequestGuard_NonStreamingCompleteReleasesConnection(t *testing.T) {
	collector := metrics.New()
	s := &State{Metrics: collector}

	g := s.newRequestGuard("claude-sonnet-4", false, 42)
	assert.EqualValues(t, 1, collector.ActiveConnections())
	g.complete(7)
	assert.EqualValues(t, 0, collector.ActiveConnections())
}

func TestRequestGuard_StreamingCompleteReleasesConnection(t *testing.T) {
	collector := metrics.New()
	s := &State{Metrics: collector}

	g := s.newRequestGuard("claude-sonnet-4", true, 42)
	g.outputTokenCounter().Add(99)
	g.complete(0)
	assert.EqualValues(t, 0, collector.ActiveConnections())
}

func TestRequestGuard_CloseWithoutCompleteReleasesConnection(t *testing.T) {
	collector := metrics.New()
	s := &State{Metrics: collector}

	g := s.newRequestGuard("claude-sonnet-4", false, 10)
	g.close()
	assert.EqualValues(t, 0, collector.ActiveConnections())
}

func TestRequestGuard_NilMetricsIsNoop(t *testing.T) {
	s := &State{}
	g := s.newRequestGuard("claude-sonnet-4", false, 10)
	assert.NotPanics(t, func() {
		g.complete(5)
		g.close()
	})
}
