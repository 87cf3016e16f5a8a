package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/infra/monitoring"
	"github.com/kilianp07/kenter-mqtt/infra/mqtt"
)

type Config struct {
	Kenter    KenterConfig      `json:"kenter" yaml:"kenter"`
	MQTT      mqtt.Config       `json:"mqtt" yaml:"mqtt"`
	Scheduler SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	Metrics   metrics.Config    `json:"metrics" yaml:"metrics"`
	Sentry    monitoring.Config `json:"sentry" yaml:"sentry"`
	Log       LogConfig         `json:"log" yaml:"log"`

	// Defaulted lists the required variables that were unset and fell back
	// to the add-on defaults.
	Defaulted []string `json:"-" yaml:"-"`
}

// defaultedKeys are required by the add-on but have a usable default.
var defaultedKeys = []string{"kenter.api_url", "mqtt.host", "mqtt.port"}

// addonEnv maps the variables exported by the add-on start script to
// configuration keys.
var addonEnv = map[string]string{
	"KENTER_API_URL":        "kenter.api_url",
	"KENTER_TOKEN_URL":      "kenter.token_url",
	"KENTER_CLIENT_ID":      "kenter.client_id",
	"KENTER_CLIENT_SECRET":  "kenter.client_secret",
	"KENTER_CONNECTION_ID":  "kenter.connection_id",
	"KENTER_METERING_POINT": "kenter.metering_point",
	"MQTT_HOST":             "mqtt.host",
	"MQTT_PORT":             "mqtt.port",
	"MQTT_USER":             "mqtt.username",
	"MQTT_PASSWORD":         "mqtt.password",
	"MQTT_TOPIC_PREFIX":     "mqtt.topic_prefix",
	"CHECK_INTERVAL":        "scheduler.check_interval",
	"LOG_LEVEL":             "log.level",
	"SENTRY_DSN":            "sentry.dsn",
}

// envName returns the add-on variable feeding key, or the K_ override form.
func envName(key string) string {
	for name, k := range addonEnv {
		if k == key {
			return name
		}
	}
	return "K_" + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

// Load reads the optional config file at path, then the add-on environment
// variables, then K_<SECTION>__<KEY> overrides, in increasing precedence.
// All missing or invalid settings are reported together in a *ConfigError.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return addonEnv[s]
	}), nil); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, &ConfigError{Invalid: []string{err.Error()}}
	}

	cerr := &ConfigError{}
	// Explicitly empty broker settings are an operator mistake, not a
	// request for the default broker.
	for _, key := range []string{"mqtt.host", "mqtt.port"} {
		if k.Exists(key) && strings.TrimSpace(k.String(key)) == "" && k.String("mqtt.broker") == "" {
			cerr.Missing = append(cerr.Missing, envName(key))
		}
	}
	for _, key := range defaultedKeys {
		if !k.Exists(key) && (!strings.HasPrefix(key, "mqtt.") || k.String("mqtt.broker") == "") {
			cfg.Defaulted = append(cfg.Defaulted, envName(key))
		}
	}
	cfg.SetDefaults()
	cfg.validate(cerr)
	if !cerr.empty() {
		return nil, cerr
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Kenter.SetDefaults()
	c.MQTT.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Log.SetDefaults()
	if c.Sentry.Environment == "" {
		c.Sentry.Environment = os.Getenv("APP_ENV")
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	cerr := &ConfigError{}
	c.validate(cerr)
	if cerr.empty() {
		return nil
	}
	return cerr
}

func (c Config) validate(cerr *ConfigError) {
	c.Kenter.validate(cerr)
	if err := c.MQTT.Validate(); err != nil {
		cerr.Invalid = append(cerr.Invalid, err.Error())
	}
	c.Scheduler.validate(cerr)
	if err := c.Log.Validate(); err != nil {
		cerr.Invalid = append(cerr.Invalid, err.Error())
	}
}
