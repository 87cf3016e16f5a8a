package mqtt

import "strings"

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")

func segment(s string) string { return segmentReplacer.Replace(s) }

// MeasurementTopic is where the interval readings of a channel are published.
func MeasurementTopic(prefix, meteringPoint, channel string) string {
	return prefix + "/" + segment(meteringPoint) + "/" + segment(channel)
}

// DailyTopic holds the retained daily total of a channel.
func DailyTopic(prefix, meteringPoint, channel string) string {
	return MeasurementTopic(prefix, meteringPoint, channel) + "/daily"
}

// AvailabilityTopic carries the online/offline state of the bridge.
func AvailabilityTopic(prefix, meteringPoint string) string {
	return prefix + "/" + segment(meteringPoint) + "/availability"
}

// DiscoveryTopic is the Home Assistant discovery config topic of a channel.
func DiscoveryTopic(discoveryPrefix, meteringPoint, channel string) string {
	return discoveryPrefix + "/sensor/" + objectID(meteringPoint, channel) + "/config"
}

func objectID(meteringPoint, channel string) string {
	return "kenter_" + segment(meteringPoint) + "_" + segment(channel)
}
