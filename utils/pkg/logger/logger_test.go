package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGrid_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 4, 5, 6, 7, 89_000_000, time.FixedZone("X", 3600))
	require.Equal(t, "2026-03-04T04:06:07.089Z", formatRFC3339Millis(ts))
}

func TestGrid_Logger_JSONDropsEmptyStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{JSON: true, Writer: &buf})
	log.Info("engine: claim_parcel", "buyer", "abc", "note", "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "engine: claim_parcel", line["msg"])
	require.Equal(t, "abc", line["buyer"])
	require.NotContains(t, line, "note")
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, line["time"])
}

func TestGrid_Logger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithOptions(Options{Writer: &buf}).Debug("hidden")
	require.Empty(t, buf.String())

	NewWithOptions(Options{Verbose: true, Writer: &buf}).Debug("shown")
	require.Contains(t, buf.String(), "shown")
}
