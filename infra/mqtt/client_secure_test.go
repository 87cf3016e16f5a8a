package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestLoadTLSConfigSystemRoots(t *testing.T) {
	tlsCfg, err := Config{UseTLS: true}.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if tlsCfg.RootCAs != nil || len(tlsCfg.Certificates) != 0 {
		t.Fatalf("expected system roots without client certs")
	}
}

func TestLoadTLSConfigHalfClientPair(t *testing.T) {
	cert, _, _ := generateCert(t)
	if _, err := (Config{UseTLS: true, ClientCert: cert}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error when client key is missing")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
	if !opts.AutoReconnect || opts.ConnectRetry {
		t.Fatalf("expected auto reconnect without connect retry")
	}
}

func TestNewClientOptionsTLSBroker(t *testing.T) {
	cfg := Config{Host: "broker.local", Port: 8883, UseTLS: true, ClientID: "id"}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Fatalf("unexpected servers %v", opts.Servers)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("tls config not set")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.BrokerURL() != "tcp://core-mosquitto:1883" {
		t.Fatalf("unexpected broker %s", cfg.BrokerURL())
	}
	if cfg.TopicPrefix != "kenter" || cfg.DiscoveryPrefix != "homeassistant" {
		t.Fatalf("unexpected prefixes %s %s", cfg.TopicPrefix, cfg.DiscoveryPrefix)
	}
	if len(cfg.ClientID) <= len("kenter-mqtt-") {
		t.Fatalf("client id not generated: %q", cfg.ClientID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Port: 1883}).Validate(); err == nil {
		t.Fatalf("expected missing host error")
	}
	if err := (Config{Host: "h", Port: 70000}).Validate(); err == nil {
		t.Fatalf("expected port range error")
	}
	if err := (Config{Host: "h", Port: 1883, QoS: 3}).Validate(); err == nil {
		t.Fatalf("expected qos error")
	}
}
