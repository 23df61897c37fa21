package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_ProductionWritesJSON(t *testing.T) {
	original := log.Logger
	t.Cleanup(func() { log.Logger = original })

	var buf bytes.Buffer
	initLogger(&buf, "medigrid", "production")

	GetLogger().Info().Int("count", 2).Msg("saved prescription")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "medigrid", entry["service"])
	assert.Equal(t, "saved prescription", entry["message"])
	assert.Equal(t, float64(2), entry["count"])
	assert.Contains(t, entry, "caller")
}

func TestLoggerFromContext_NoSpan(t *testing.T) {
	original := log.Logger
	t.Cleanup(func() { log.Logger = original })

	var buf bytes.Buffer
	initLogger(&buf, "medigrid", "production")

	LoggerFromContext(context.Background()).Warn().Msg("no trace")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.Equal(t, "warn", entry["level"])
}
