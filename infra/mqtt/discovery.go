package mqtt

import (
	"strings"
)

// DeviceInfo is the Home Assistant device block shared by all sensors of a
// metering point, so they are grouped on a single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// SensorConfig is the retained discovery payload of one channel sensor.
type SensorConfig struct {
	Name              string     `json:"name"`
	ObjectID          string     `json:"object_id"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string     `json:"value_template"`
	Icon              string     `json:"icon,omitempty"`
}

func newDeviceInfo(meteringPoint string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"kenter_" + segment(meteringPoint)},
		Name:         "Kenter " + meteringPoint,
		Manufacturer: "Kenter",
		Model:        "Metering point",
	}
}

// NewSensorConfig describes the daily total sensor of a channel.
func NewSensorConfig(cfg Config, meteringPoint, channel, unit string) SensorConfig {
	sc := SensorConfig{
		Name:              sensorName(channel),
		ObjectID:          objectID(meteringPoint, channel),
		UniqueID:          objectID(meteringPoint, channel),
		StateTopic:        DailyTopic(cfg.TopicPrefix, meteringPoint, channel),
		AvailabilityTopic: AvailabilityTopic(cfg.TopicPrefix, meteringPoint),
		Device:            newDeviceInfo(meteringPoint),
		UnitOfMeasurement: unit,
		ValueTemplate:     "{{ value_json.value }}",
		Icon:              "mdi:flash",
	}
	// HA only accepts the energy class for energy units.
	if isEnergyUnit(unit) {
		sc.DeviceClass = "energy"
		sc.StateClass = "total"
	} else {
		sc.StateClass = "measurement"
	}
	if strings.HasPrefix(channel, "feedin") {
		sc.Icon = "mdi:transmission-tower-export"
	}
	return sc
}

func isEnergyUnit(unit string) bool {
	switch strings.ToLower(unit) {
	case "wh", "kwh", "mwh":
		return true
	}
	return false
}

// sensorName turns "feedin_total" into "Kenter Feedin Total".
func sensorName(channel string) string {
	parts := strings.FieldsFunc(channel, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return "Kenter " + strings.Join(parts, " ")
}
