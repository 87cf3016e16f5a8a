package model

import "time"

// AccessToken is a bearer token issued by the Kenter identity provider.
type AccessToken struct {
	Value  string
	Expiry time.Time
}

// Valid reports whether the token can still be used at now, keeping margin
// in reserve before the expiry. A zero Expiry never expires.
func (t AccessToken) Valid(now time.Time, margin time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(margin).Before(t.Expiry)
}
