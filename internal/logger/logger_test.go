package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesJSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "nested", "relay.log")
	require.NoError(t, Init(Options{Level: "info", File: file, MaxSizeMB: 1, Console: &buf}))
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Str("kind", "TIMEOUT").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &ev))
	assert.Equal(t, "visible", ev["message"])
	assert.Equal(t, "TIMEOUT", ev["kind"])
	assert.Equal(t, "linerelay", ev["service"])

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"visible"`)
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "chatty", Console: &buf}))
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
