package config

import (
	"maps"
	"strings"

	"github.com/kilianp07/kenter-mqtt/core/factory"
)

const redacted = "***"

// sinkSecrets are sink option keys never printed.
var sinkSecrets = []string{"token", "password", "secret"}

// Redacted returns a copy of c with credentials masked, suitable for
// printing.
func (c Config) Redacted() Config {
	out := c
	mask(&out.Kenter.ClientSecret)
	mask(&out.MQTT.Password)
	mask(&out.Sentry.DSN)
	out.MQTT.TLSConfig = nil
	out.Metrics.Sinks = make([]factory.ModuleConfig, len(c.Metrics.Sinks))
	for i, s := range c.Metrics.Sinks {
		s.Conf = maps.Clone(s.Conf)
		for key := range s.Conf {
			for _, secret := range sinkSecrets {
				if strings.Contains(strings.ToLower(key), secret) {
					s.Conf[key] = redacted
				}
			}
		}
		out.Metrics.Sinks[i] = s
	}
	return out
}

func mask(s *string) {
	if *s != "" {
		*s = redacted
	}
}
