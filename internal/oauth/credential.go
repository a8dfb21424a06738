package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// expiryMargin is subtracted from a credential's lifetime when checking
// usability, to absorb clock skew and request latency.
const expiryMargin = 30 * time.Second

// Credential is the OAuth token material for the single signed-in account.
// The auth Manager is its only owner; the API client holds a copy of the
// access token string at most for the duration of one request.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ExpiresAt returns the instant the access token stops being usable.
func (c *Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// Usable reports whether the access token can still be attached to requests.
// A credential with no positive lifetime is never usable directly.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || c.AccessToken == "" || c.ExpiresIn <= 0 {
		return false
	}
	return now.Add(expiryMargin).Before(c.ExpiresAt())
}

// CredentialFromToken converts a token endpoint response into a Credential
// stamped with its issue time.
func CredentialFromToken(tok *oauth2.Token, issuedAt time.Time) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int64(tok.Expiry.Sub(issuedAt) / time.Second)
	}
	return cred
}
