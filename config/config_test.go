package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAddonEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KENTER_CLIENT_ID", "id")
	t.Setenv("KENTER_CLIENT_SECRET", "secret")
	t.Setenv("KENTER_CONNECTION_ID", "871685900000000000")
	t.Setenv("KENTER_METERING_POINT", "871685900000000001")
}

func TestLoadFromAddonEnv(t *testing.T) {
	setAddonEnv(t)
	t.Setenv("MQTT_HOST", "broker.local")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_USER", "ha")
	t.Setenv("MQTT_PASSWORD", "pw")
	t.Setenv("CHECK_INTERVAL", "60")
	t.Setenv("KENTER_API_URL", "https://api.example.test/")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.Kenter.ClientID)
	assert.Equal(t, "https://api.example.test", cfg.Kenter.APIURL)
	assert.Equal(t, "https://login.kenter.nu/connect/token", cfg.Kenter.TokenURL)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1884, cfg.MQTT.Port)
	assert.Empty(t, cfg.Defaulted)
	assert.Equal(t, "ha", cfg.MQTT.Username)
	assert.Equal(t, "pw", cfg.MQTT.Password)
	assert.Equal(t, "kenter", cfg.MQTT.TopicPrefix)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval())
	require.NotNil(t, cfg.Scheduler.DayOffset)
	assert.Equal(t, 1, *cfg.Scheduler.DayOffset)

	q := cfg.Kenter.Query()
	assert.Equal(t, "871685900000000001", q.MeteringPointID)
	sc, err := cfg.Scheduler.Build(q)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Amsterdam", sc.Location.String())
	assert.Equal(t, []string{"meetdata.read"}, cfg.Kenter.AuthConf().Scopes)
}

func TestLoadDefaults(t *testing.T) {
	setAddonEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "core-mosquitto", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "https://api.kenter.nu", cfg.Kenter.APIURL)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval())
	assert.Equal(t, 3, cfg.Scheduler.FailureThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.ElementsMatch(t, []string{"KENTER_API_URL", "MQTT_HOST", "MQTT_PORT"}, cfg.Defaulted)
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("KENTER_CLIENT_ID", "id")
	t.Setenv("MQTT_HOST", "")
	_, err := Load("")
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "expected ConfigError, got %v", err)
	assert.ElementsMatch(t, []string{
		"MQTT_HOST",
		"KENTER_CLIENT_SECRET",
		"KENTER_CONNECTION_ID",
		"KENTER_METERING_POINT",
	}, cerr.Missing)
	assert.Contains(t, err.Error(), "KENTER_METERING_POINT")
}

func TestLoadRejectsShortInterval(t *testing.T) {
	setAddonEnv(t)
	t.Setenv("CHECK_INTERVAL", "30")
	_, err := Load("")
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Invalid, 1)
	assert.Contains(t, cerr.Invalid[0], "CHECK_INTERVAL")
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	setAddonEnv(t)
	t.Setenv("MQTT_PORT", "abc")
	_, err := Load("")
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Invalid)
}

func TestLoadFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `kenter:
  client_id: "file-id"
  client_secret: "file-secret"
  connection_id: "conn"
  metering_point: "mp"
  retry:
    max_attempts: 6
mqtt:
  broker: "ssl://broker.example:8883"
  qos: 1
  discovery_prefix: "ha"
scheduler:
  check_interval: 900
  cycle_timeout: "90s"
  day_offset: 0
metrics:
  addr: ":9100"
  sinks:
    - type: "prometheus"
log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("KENTER_CLIENT_ID", "env-id")
	t.Setenv("K_MQTT__TOPIC_PREFIX", "energy")

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"env beats file", cfg.Kenter.ClientID, "env-id"},
		{"file secret", cfg.Kenter.ClientSecret, "file-secret"},
		{"retry", cfg.Kenter.Retry.MaxAttempts, 6},
		{"broker", cfg.MQTT.BrokerURL(), "ssl://broker.example:8883"},
		{"qos", cfg.MQTT.QoS, byte(1)},
		{"discovery", cfg.MQTT.DiscoveryPrefix, "ha"},
		{"override", cfg.MQTT.TopicPrefix, "energy"},
		{"interval", cfg.Scheduler.Interval(), 15 * time.Minute},
		{"cycle timeout", cfg.Scheduler.CycleTimeout, 90 * time.Second},
		{"day offset", *cfg.Scheduler.DayOffset, 0},
		{"metrics addr", cfg.Metrics.Addr, ":9100"},
		{"metrics sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"log level", cfg.Log.Level, "debug"},
		{"log format", cfg.Log.Format, "console"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.Error(t, err)
}
