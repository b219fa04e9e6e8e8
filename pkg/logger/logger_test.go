package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(Config{Level: "debug"}, &buf), "odds")

	l.Info().Int("rows", 3).Msg("imported")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "odds", entry["component"])
	assert.Equal(t, "imported", entry["message"])
	assert.EqualValues(t, 3, entry["rows"])
	assert.Contains(t, entry, "time")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
}
