package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Host                 string        `json:"host" yaml:"host"`
	Port                 int           `json:"port" yaml:"port"`
	Broker               string        `json:"broker" yaml:"broker"` // full URL, overrides host and port
	ClientID             string        `json:"client_id" yaml:"client_id"`
	Username             string        `json:"username" yaml:"username"`
	Password             string        `json:"password" yaml:"password"`
	UseTLS               bool          `json:"use_tls" yaml:"use_tls"`
	ClientCert           string        `json:"client_cert" yaml:"client_cert"`
	ClientKey            string        `json:"client_key" yaml:"client_key"`
	CABundle             string        `json:"ca_bundle" yaml:"ca_bundle"`
	TopicPrefix          string        `json:"topic_prefix" yaml:"topic_prefix"`
	DiscoveryPrefix      string        `json:"discovery_prefix" yaml:"discovery_prefix"`
	DisableDiscovery     bool          `json:"disable_discovery" yaml:"disable_discovery"`
	QoS                  byte          `json:"qos" yaml:"qos"`
	MaxRetries           int           `json:"max_retries" yaml:"max_retries"`
	BackoffMS            int           `json:"backoff_ms" yaml:"backoff_ms"`
	ConnectTimeout       time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout       time.Duration `json:"publish_timeout" yaml:"publish_timeout"`
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	TLSConfig            *tls.Config   `json:"-" yaml:"-"`
}

// SetDefaults applies the add-on defaults.
func (c *Config) SetDefaults() {
	if c.Host == "" && c.Broker == "" {
		c.Host = "core-mosquitto"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientID == "" {
		c.ClientID = "kenter-mqtt-" + uuid.NewString()[:8]
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "kenter"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = 2 * time.Minute
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" && c.Host == "" {
		return errors.New("mqtt host is required")
	}
	if c.Broker == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("mqtt port %d out of range", c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d invalid", c.QoS)
	}
	return nil
}

// BrokerURL returns the URL handed to paho.
func (c Config) BrokerURL() string {
	if c.Broker != "" {
		return c.Broker
	}
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// pahoClient is the subset of paho.Client used by the publisher.
type pahoClient interface {
	IsConnected() bool
	IsConnectionOpen() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClientOptions builds mqtt client options from Config. Reconnection
// after a dropped connection is left to paho, which backs off up to
// MaxReconnectInterval.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.BrokerURL()).SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the
// config. Without client certificates the system roots are used, optionally
// extended with CABundle.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates in %s", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	if c.ClientCert != "" || c.ClientKey != "" {
		if c.ClientCert == "" || c.ClientKey == "" {
			return nil, fmt.Errorf("tls client auth requires both client_cert and client_key")
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// classifyConnectErr maps a CONNACK refusal to AuthFailed and everything
// else to Unreachable.
func classifyConnectErr(err error) *PublishError {
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		return &PublishError{Kind: KindAuthFailed, Err: err}
	}
	return &PublishError{Kind: KindUnreachable, Err: err}
}
