package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONFile(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "run.log")
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Level = "debug"
	cfg.Output = path
	require.NoError(t, Setup(cfg))

	l := WithMode("cmd", "test")
	l.Debug().Int("page", 2).Msg("Page compared")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "cmd", entry["component"])
	assert.Equal(t, "test", entry["mode"])
	assert.Equal(t, "Page compared", entry["message"])
	assert.EqualValues(t, 2, entry["page"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, Setup(cfg))
}
