// Package session owns the storefront credentials: it hands bearer tokens
// to the resource client, refreshes them when they expire and tears the
// session down exactly once when the backend rejects them.
package session

import (
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/golang-jwt/jwt/v5"
)

// ExpirySkew refreshes tokens slightly before they actually expire.
const ExpirySkew = 30 * time.Second

// Credentials is the persisted token pair.
type Credentials struct {
	// AccessToken is sent as the bearer token.
	AccessToken string `json:"access_token"`

	// RefreshToken exchanges for a new access token. Optional.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when AccessToken stops being accepted.
	// The zero value means the expiry is unknown and the token is used until rejected.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Email of the logged-in user, when known.
	Email string `json:"email,omitempty"`
}

// IsExpired returns true if the access token expires within ExpirySkew.
func (c Credentials) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(c.ExpiresAt) < ExpirySkew
}

// TimeUntilExpiry returns the duration until the access token expires.
// Returns 0 if it already expired or the expiry is unknown.
func (c Credentials) TimeUntilExpiry() time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	d := time.Until(c.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// fromTokens builds credentials from a login or refresh response.
// previous supplies the refresh token and email when the response omits them.
func fromTokens(resp client.TokenResponse, previous Credentials, now time.Time) Credentials {
	creds := Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(resp, now),
		Email:        previous.Email,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previous.RefreshToken
	}
	if resp.User != nil && resp.User.Email != "" {
		creds.Email = resp.User.Email
	}
	return creds
}

// tokenExpiry prefers expires_in and falls back to the JWT exp claim.
// The signature is not verified: the backend does that, the client only
// needs to know when to refresh.
func tokenExpiry(resp client.TokenResponse, now time.Time) time.Time {
	if resp.ExpiresIn > 0 {
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	token, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
