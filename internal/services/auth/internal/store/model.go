package store

import (
	"time"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
)

type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	Model
	ID       string
	Services map[string]map[string]any
	Profile  Profile
	Emails   []Email
}

type Profile struct {
	Name string
}

type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// ServiceData is the per-provider token and profile record embedded in a User.
type ServiceData struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        []string
	Identity     identity.ServiceIdentity
}

// Fields flattens the record into the set of fields written on every login.
// Each field replaces its stored value independently, so a refresh token is
// only written when one was issued and a stored one survives otherwise.
func (d ServiceData) Fields() map[string]any {
	f := make(map[string]any, len(d.Identity)+5)
	for k, v := range d.Identity {
		f[k] = v
	}

	f["accessToken"] = d.AccessToken
	f["expiresAt"] = d.ExpiresAt.UnixMilli()
	if d.IDToken != "" {
		f["idToken"] = d.IDToken
	}
	if d.Scope != nil {
		f["scope"] = d.Scope
	}
	if d.RefreshToken != "" {
		f["refreshToken"] = d.RefreshToken
	}

	return f
}
