package auth

import (
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the Kenter identity provider token endpoint.
const DefaultTokenURL = "https://login.kenter.nu/connect/token"

// DefaultScope grants read access to the metering data API.
const DefaultScope = "meetdata.read"

// Conf represents the configuration needed for authentication.
type Conf struct {
	ClientID      string        `json:"client_id"`
	ClientSecret  string        `json:"client_secret"`
	AuthURL       string        `json:"auth_url"`
	Scopes        []string      `json:"scopes"`
	RefreshMargin time.Duration `json:"refresh_margin"`
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	url := c.AuthURL
	if url == "" {
		url = DefaultTokenURL
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     url,
		Scopes:       scopes,
		// Kenter expects the credentials in the form body.
		AuthStyle: oauth2.AuthStyleInParams,
	}
}
