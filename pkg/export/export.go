// Package export writes readings in machine friendly formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

type jsonMeasurement struct {
	Timestamp string  `json:"timestamp"`
	Channel   string  `json:"channel"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// WriteJSON writes the readings to w as a JSON array.
func WriteJSON(w io.Writer, ms []model.Measurement) error {
	out := make([]jsonMeasurement, 0, len(ms))
	for _, m := range ms {
		out = append(out, jsonMeasurement{
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
			Channel:   m.Channel,
			Value:     m.Value,
			Unit:      m.Unit,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteCSV writes the readings to w with a header row.
func WriteCSV(w io.Writer, ms []model.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "channel", "value", "unit"}); err != nil {
		return err
	}
	for _, m := range ms {
		rec := []string{
			m.Timestamp.UTC().Format(time.RFC3339),
			m.Channel,
			strconv.FormatFloat(m.Value, 'f', -1, 64),
			m.Unit,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, "json" or "csv".
func Write(w io.Writer, format string, ms []model.Measurement) error {
	switch format {
	case "json":
		return WriteJSON(w, ms)
	case "csv":
		return WriteCSV(w, ms)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
