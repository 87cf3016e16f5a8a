package config

import (
	"strings"
	"time"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/kenter"
)

// KenterConfig holds the API credentials and the metering point to poll.
type KenterConfig struct {
	APIURL         string             `json:"api_url" yaml:"api_url"`
	TokenURL       string             `json:"token_url" yaml:"token_url"`
	Scope          string             `json:"scope" yaml:"scope"`
	ClientID       string             `json:"client_id" yaml:"client_id"`
	ClientSecret   string             `json:"client_secret" yaml:"client_secret"`
	ConnectionID   string             `json:"connection_id" yaml:"connection_id"`
	MeteringPoint  string             `json:"metering_point" yaml:"metering_point"`
	RequestTimeout time.Duration      `json:"request_timeout" yaml:"request_timeout"`
	RefreshMargin  time.Duration      `json:"refresh_margin" yaml:"refresh_margin"`
	Retry          kenter.RetryConfig `json:"retry" yaml:"retry"`
}

// SetDefaults applies the production endpoints.
func (c *KenterConfig) SetDefaults() {
	if c.APIURL == "" {
		c.APIURL = kenter.DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.TokenURL == "" {
		c.TokenURL = auth.DefaultTokenURL
	}
	if c.Scope == "" {
		c.Scope = auth.DefaultScope
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = 5 * time.Minute
	}
	c.Retry.SetDefaults()
}

func (c KenterConfig) validate(cerr *ConfigError) {
	required := []struct{ key, val string }{
		{"kenter.client_id", c.ClientID},
		{"kenter.client_secret", c.ClientSecret},
		{"kenter.connection_id", c.ConnectionID},
		{"kenter.metering_point", c.MeteringPoint},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			cerr.Missing = append(cerr.Missing, envName(r.key))
		}
	}
}

// Query returns the metering point to poll.
func (c KenterConfig) Query() model.MeteringQuery {
	return model.MeteringQuery{ConnectionID: c.ConnectionID, MeteringPointID: c.MeteringPoint}
}

// AuthConf returns the token client settings.
func (c KenterConfig) AuthConf() auth.Conf {
	return auth.Conf{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		AuthURL:       c.TokenURL,
		Scopes:        strings.Fields(c.Scope),
		RefreshMargin: c.RefreshMargin,
	}
}
