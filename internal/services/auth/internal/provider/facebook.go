package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/oauth"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/svcconfig"
)

const facebookMeURL = "https://graph.facebook.com/v2.4/me"

var facebookWhitelist = identity.Whitelist{
	"id",
	"email",
	"name",
	"first_name",
	"last_name",
	"link",
	"gender",
	"locale",
	"age_range",
}

// Facebook verifies access tokens from the Facebook SDK. The Graph /me call
// both validates the token and returns the profile.
type Facebook struct {
	client *Client
	meURL  string
}

type FacebookOption func(*Facebook) *Facebook

func WithGraphMeURL(u string) FacebookOption {
	return func(f *Facebook) *Facebook {
		f.meURL = u
		return f
	}
}

func NewFacebook(c *Client, opts ...FacebookOption) *Facebook {
	f := &Facebook{
		client: c,
		meURL:  facebookMeURL,
	}
	for _, opt := range opts {
		f = opt(f)
	}
	return f
}

func (f *Facebook) Name() string {
	return "facebook"
}

func (f *Facebook) Whitelist() identity.Whitelist {
	return facebookWhitelist
}

func (f *Facebook) RequiresConfig() bool {
	return false
}

type facebookCredential struct {
	AccessToken    string          `json:"accessToken"`
	ExpirationTime json.RawMessage `json:"expirationTime"`
}

func (f *Facebook) ParseCredential(raw json.RawMessage) (oauth.Credential, error) {
	var c facebookCredential
	if err := json.Unmarshal(raw, &c); err != nil {
		return oauth.Credential{}, fmt.Errorf("%w: %v", oauth.ErrMissingCredential, err)
	}

	return oauth.Credential{
		AccessToken: c.AccessToken,
		ExpiresIn:   oauth.ParseTTL(c.ExpirationTime),
	}, nil
}

// EmailVerified is always true: Graph only returns confirmed addresses.
func (f *Facebook) EmailVerified(identity.ServiceIdentity) bool {
	return true
}

func (f *Facebook) Verify(ctx context.Context, cred oauth.Credential, _ svcconfig.ProviderConfig) (oauth.Verified, error) {
	if cred.AccessToken == "" {
		return oauth.Verified{}, oauth.ErrMissingCredential
	}

	resp, err := f.client.Get(ctx, f.meURL, url.Values{
		"access_token": {cred.AccessToken},
		"fields":       {strings.Join(facebookWhitelist, ",")},
	})
	if err != nil {
		slog.Warn("facebook access token rejected", responseAttrs(err)...)
		return oauth.Verified{}, oauth.ErrVerificationFailed
	}

	sub := stringClaim(resp.Data, "id")
	if sub == "" {
		slog.Warn("facebook profile without id")
		return oauth.Verified{}, oauth.ErrVerificationFailed
	}

	return oauth.Verified{
		Subject:     sub,
		Claims:      resp.Data,
		Profile:     resp.Data,
		AccessToken: cred.AccessToken,
	}, nil
}
