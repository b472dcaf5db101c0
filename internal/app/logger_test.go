package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONCarriesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("ledger drift", "accounts", 2)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "odyssey-ledger", line["service"])
	assert.Equal(t, "staging", line["env"])
	assert.Equal(t, "ledger drift", line["msg"])
	assert.EqualValues(t, 2, line["accounts"])
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, "INFO", parseLevel(nil).String())
	assert.Equal(t, "INFO", parseLevel(&Config{LogLevel: "verbose"}).String())
	assert.Equal(t, "DEBUG", parseLevel(&Config{LogLevel: "DEBUG"}).String())
}
