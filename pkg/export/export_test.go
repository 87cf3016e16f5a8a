package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

func readings() []model.Measurement {
	ts := time.Date(2025, 2, 28, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	return []model.Measurement{
		{Timestamp: ts, Channel: "consumption", Value: 0.125, Unit: "kWh"},
		{Timestamp: ts, Channel: "feedin", Value: 2, Unit: "kWh"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, readings()))
	want := "timestamp,channel,value,unit\n" +
		"2025-02-28T00:00:00Z,consumption,0.125,kWh\n" +
		"2025-02-28T00:00:00Z,feedin,2,kWh\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", readings()))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2025-02-28T00:00:00Z", got[0]["timestamp"])
	assert.Equal(t, "feedin", got[1]["channel"])
}

func TestWriteEmptyAndUnknown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
	assert.Error(t, Write(&buf, "xml", nil))
}
