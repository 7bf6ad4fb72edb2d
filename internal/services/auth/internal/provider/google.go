package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/oauth"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/svcconfig"
	"golang.org/x/oauth2"
)

var googleWhitelist = identity.Whitelist{
	"id",
	"email",
	"verified_email",
	"name",
	"given_name",
	"family_name",
	"picture",
	"locale",
	"timezone",
	"gender",
}

// GoogleEndpoints lists the Google URLs used to verify a sign in.
type GoogleEndpoints struct {
	IDTokenInfo     string
	AccessTokenInfo string
	UserInfo        string
	Token           string
}

func DefaultGoogleEndpoints() GoogleEndpoints {
	return GoogleEndpoints{
		IDTokenInfo:     "https://www.googleapis.com/oauth2/v3/tokeninfo",
		AccessTokenInfo: "https://www.googleapis.com/oauth2/v1/tokeninfo",
		UserInfo:        "https://www.googleapis.com/oauth2/v1/userinfo",
		Token:           "https://www.googleapis.com/oauth2/v4/token",
	}
}

// Google verifies credentials produced by the Google Sign-In SDKs.
type Google struct {
	client    *Client
	endpoints GoogleEndpoints
}

type GoogleOption func(*Google) *Google

func WithGoogleEndpoints(e GoogleEndpoints) GoogleOption {
	return func(g *Google) *Google {
		g.endpoints = e
		return g
	}
}

func NewGoogle(c *Client, opts ...GoogleOption) *Google {
	g := &Google{
		client:    c,
		endpoints: DefaultGoogleEndpoints(),
	}
	for _, opt := range opts {
		g = opt(g)
	}
	return g
}

func (g *Google) Name() string {
	return "google"
}

func (g *Google) Whitelist() identity.Whitelist {
	return googleWhitelist
}

func (g *Google) RequiresConfig() bool {
	return true
}

type googleCredential struct {
	AccessToken               string          `json:"accessToken"`
	IDToken                   string          `json:"idToken"`
	AccessTokenExpirationDate json.RawMessage `json:"accessTokenExpirationDate"`
	ServerAuthCode            string          `json:"serverAuthCode"`
}

func (g *Google) ParseCredential(raw json.RawMessage) (oauth.Credential, error) {
	var c googleCredential
	if err := json.Unmarshal(raw, &c); err != nil {
		return oauth.Credential{}, fmt.Errorf("%w: %v", oauth.ErrMissingCredential, err)
	}

	return oauth.Credential{
		AccessToken:    c.AccessToken,
		IDToken:        c.IDToken,
		ServerAuthCode: c.ServerAuthCode,
		ExpiresIn:      oauth.ParseTTL(c.AccessTokenExpirationDate),
	}, nil
}

func (g *Google) EmailVerified(id identity.ServiceIdentity) bool {
	return id.Bool("verified_email")
}

// Verify checks the ID token with Google and that it was issued to one of
// cfg.ValidClientIDs, then loads the token scopes and the user profile. When
// a server auth code is present it is exchanged for fresh tokens.
func (g *Google) Verify(ctx context.Context, cred oauth.Credential, cfg svcconfig.ProviderConfig) (oauth.Verified, error) {
	if cred.IDToken == "" {
		return oauth.Verified{}, oauth.ErrMissingCredential
	}

	claims, ok := g.verifyIDToken(ctx, cred.IDToken, cfg.ValidClientIDs)
	if !ok {
		return oauth.Verified{}, oauth.ErrLinkFailed
	}

	scope, err := g.scopes(ctx, cred.AccessToken)
	if err != nil {
		return oauth.Verified{}, err
	}

	profile, err := g.profile(ctx, cred.AccessToken)
	if err != nil {
		return oauth.Verified{}, err
	}

	v := oauth.Verified{
		Subject:     stringClaim(claims, "sub"),
		Audience:    stringClaim(claims, "aud"),
		Claims:      claims,
		Profile:     profile,
		AccessToken: cred.AccessToken,
		IDToken:     cred.IDToken,
		Scope:       scope,
	}

	if cred.ServerAuthCode != "" {
		tok, err := g.exchange(ctx, cred.ServerAuthCode, cfg)
		if err != nil {
			// The exchange only upgrades the tokens; the login stands without it.
			logExchangeErr(err)
			return v, nil
		}
		applyToken(&v, tok)
	}

	return v, nil
}

func (g *Google) verifyIDToken(ctx context.Context, idToken string, validClientIDs []string) (map[string]any, bool) {
	resp, err := g.client.Get(ctx, g.endpoints.IDTokenInfo, url.Values{"id_token": {idToken}})
	if err != nil {
		slog.Warn("google id token rejected", responseAttrs(err)...)
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("google id token rejected", "provider_status", resp.StatusCode)
		return nil, false
	}

	aud := stringClaim(resp.Data, "aud")
	if !slices.Contains(validClientIDs, aud) {
		slog.Warn("google id token issued to unknown client", "aud", aud)
		return nil, false
	}

	if stringClaim(resp.Data, "sub") == "" {
		slog.Warn("google id token info without subject")
		return nil, false
	}

	return resp.Data, true
}

func (g *Google) scopes(ctx context.Context, accessToken string) ([]string, error) {
	resp, err := g.client.Get(ctx, g.endpoints.AccessTokenInfo, url.Values{"access_token": {accessToken}})
	if err != nil {
		return nil, communicationError("google", "fetch token info", err)
	}

	return strings.Fields(stringClaim(resp.Data, "scope")), nil
}

func (g *Google) profile(ctx context.Context, accessToken string) (map[string]any, error) {
	resp, err := g.client.Get(ctx, g.endpoints.UserInfo, url.Values{"access_token": {accessToken}})
	if err != nil {
		return nil, communicationError("google", "fetch identity", err)
	}

	return resp.Data, nil
}

func (g *Google) exchange(ctx context.Context, code string, cfg svcconfig.ProviderConfig) (*oauth2.Token, error) {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.Secret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  g.endpoints.Token,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, g.client.Timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client.HTTPClient())

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}

	return tok, nil
}

func applyToken(v *oauth.Verified, tok *oauth2.Token) {
	if tok.AccessToken != "" {
		v.AccessToken = tok.AccessToken
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		v.IDToken = idToken
	}
	if !tok.Expiry.IsZero() {
		v.ExpiresAt = tok.Expiry
	}
	if tok.RefreshToken != "" {
		v.RefreshToken = tok.RefreshToken
	}
}

func logExchangeErr(err error) {
	attrs := []any{"error", err}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		attrs = append(attrs, "error_code", rerr.ErrorCode)
		if rerr.Response != nil {
			attrs = append(attrs, "provider_status", rerr.Response.StatusCode)
		}
	}

	slog.Warn("google auth code exchange failed, keeping submitted tokens", attrs...)
}

func stringClaim(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
