package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInit_ParsesValidLevel(t *testing.T) {
	Init("warn")
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}

func TestInit_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	Init("not-a-level")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
