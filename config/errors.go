package config

import "strings"

// ConfigError lists every missing or invalid setting found at startup.
type ConfigError struct {
	Missing []string // environment variable names
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, "; "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *ConfigError) empty() bool { return len(e.Missing) == 0 && len(e.Invalid) == 0 }
