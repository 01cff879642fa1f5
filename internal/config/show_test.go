package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientID = "id-123"
	cfg.ClientSecret = "super-secret"
	cfg.AllowedOrigins = []string{"chrome-extension://abc"}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/config.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/config.toml")
	assert.Contains(t, out, `client_id         = "id-123"`)
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, `allowed_origins   = ["chrome-extension://abc"]`)
	assert.Contains(t, out, "history_enabled   = true")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "p", failingWriter{})
	assert.EqualError(t, err, "disk full")
}
