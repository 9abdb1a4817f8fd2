package oidc

import (
	"context"
	"errors"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

// Identity is the verified subset of ID token claims the service uses.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Nonce         string
}

// Authenticator runs the authorization code flow against one provider.
type Authenticator interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

type googleAuthenticator struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogle discovers Google's endpoints and returns an authenticator
// that redirects back to redirectURL.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string) (Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, err
	}

	return &googleAuthenticator{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *googleAuthenticator) AuthCodeURL(state, nonce string) string {
	return g.config.AuthCodeURL(state, oidc.Nonce(nonce))
}

func (g *googleAuthenticator) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Nonce:         idToken.Nonce,
	}, nil
}
