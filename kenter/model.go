package kenter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

const defaultUnit = "kWh"

// knownChannels maps Kenter channel codes to readable channel names. Codes
// not listed are published under their raw identifier.
var knownChannels = map[string]string{
	"16180": "consumption",
	"16280": "feedin",
	"10180": "consumption_total",
	"10280": "feedin_total",
}

// ChannelName returns the readable name of a Kenter channel code.
func ChannelName(code string) string {
	if name, ok := knownChannels[code]; ok {
		return name
	}
	return code
}

// DayResponse is the payload of the daily measurements endpoint.
type DayResponse struct {
	ConnectionID    string          `json:"connectionId"`
	MeteringPointID string          `json:"meteringPointId"`
	Channels        []ChannelData   `json:"channels"`
	Measurements    []LegacyReading `json:"measurements"`
}

// ChannelData holds the interval readings of one register.
type ChannelData struct {
	Channel      string    `json:"channel"`
	ChannelID    string    `json:"channelId"`
	Unit         string    `json:"unit"`
	Measurements []Reading `json:"measurements"`
}

// Reading is one timestamped value of a channel.
type Reading struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Value     *float64        `json:"value"`
}

// LegacyReading is the flat type/value form returned by older API versions.
type LegacyReading struct {
	Type      string          `json:"type"`
	Value     *float64        `json:"value"`
	Unit      string          `json:"unit"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// ParseDay decodes a daily measurements payload into Measurements. The
// whole payload is validated before anything is returned, so callers never
// see a partial result.
func ParseDay(body []byte, day time.Time) ([]model.Measurement, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	var days []DayResponse
	if body[0] == '[' {
		if err := json.Unmarshal(body, &days); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	} else {
		var d DayResponse
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		days = []DayResponse{d}
	}

	var out []model.Measurement
	seen := false
	for _, d := range days {
		if d.Channels == nil && d.Measurements == nil {
			continue
		}
		seen = true
		ms, err := d.measurements(day)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	if !seen {
		return nil, errors.New("payload holds neither channels nor measurements")
	}
	return out, nil
}

func (d DayResponse) measurements(day time.Time) ([]model.Measurement, error) {
	var out []model.Measurement
	for i, ch := range d.Channels {
		code := ch.Channel
		if code == "" {
			code = ch.ChannelID
		}
		if code == "" {
			return nil, fmt.Errorf("channel %d has no identifier", i)
		}
		unit := ch.Unit
		if unit == "" {
			unit = defaultUnit
		}
		for j, r := range ch.Measurements {
			if r.Value == nil {
				return nil, fmt.Errorf("channel %s reading %d has no value", code, j)
			}
			ts, ok, err := parseTimestamp(r.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("channel %s reading %d: %w", code, j, err)
			}
			if !ok {
				return nil, fmt.Errorf("channel %s reading %d has no timestamp", code, j)
			}
			out = append(out, model.Measurement{Timestamp: ts, Value: *r.Value, Channel: ChannelName(code), Unit: unit})
		}
	}
	for i, r := range d.Measurements {
		if r.Type == "" {
			return nil, fmt.Errorf("measurement %d has no type", i)
		}
		if r.Value == nil {
			return nil, fmt.Errorf("measurement %d has no value", i)
		}
		ts, ok, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("measurement %d: %w", i, err)
		}
		if !ok {
			ts = day
		}
		unit := r.Unit
		if unit == "" {
			unit = defaultUnit
		}
		out = append(out, model.Measurement{Timestamp: ts, Value: *r.Value, Channel: r.Type, Unit: unit})
	}
	return out, nil
}

// parseTimestamp accepts RFC3339 strings and unix seconds. ok is false when
// the field is absent or null.
func parseTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false, err
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, true, nil
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), true, nil
		}
		return time.Time{}, false, fmt.Errorf("invalid timestamp %q", s)
	}
	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid timestamp %s", raw)
	}
	return time.Unix(int64(secs), 0).UTC(), true, nil
}
