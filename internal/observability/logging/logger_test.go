package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t)

	logger := WithComponent("store")
	logger.Info().Msg("opened")

	assert.Contains(t, buf.String(), `"component":"store"`)
}

func TestWithSessionComponent(t *testing.T) {
	buf := captureGlobal(t)

	logger := WithSessionComponent(42, "monitor")
	logger.Info().Msg("started")

	out := buf.String()
	assert.Contains(t, out, `"sessionId":42`)
	assert.Contains(t, out, `"component":"monitor"`)
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prev := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prev
	})

	Init(Config{Level: "loud", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Init(Config{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
