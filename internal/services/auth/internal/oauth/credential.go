package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/svcconfig"
)

// Credential is what a native SDK hands to the backend after an on-device sign in.
type Credential struct {
	AccessToken    string
	IDToken        string
	ServerAuthCode string
	ExpiresIn      time.Duration
}

// Verified is a provider-corroborated identity. Token fields may differ from
// the submitted credential when the provider issued fresh ones.
type Verified struct {
	Subject      string
	Audience     string
	Claims       map[string]any
	Profile      map[string]any
	AccessToken  string
	IDToken      string
	RefreshToken string
	// ExpiresAt overrides the credential's expiry when set.
	ExpiresAt time.Time
	Scope     []string
}

// Provider verifies native SDK credentials for one identity provider.
type Provider interface {
	Name() string
	Whitelist() identity.Whitelist
	RequiresConfig() bool
	ParseCredential(raw json.RawMessage) (Credential, error)
	Verify(ctx context.Context, cred Credential, cfg svcconfig.ProviderConfig) (Verified, error)
	EmailVerified(id identity.ServiceIdentity) bool
}

const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// ParseTTL reads a token lifetime in seconds sent either as a JSON number or
// as a numeric string. Fractions are truncated. Anything unparsable, or too
// large for a time.Duration, is 0.
func ParseTTL(raw json.RawMessage) time.Duration {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	} else {
		s = string(raw)
	}

	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n > maxTTLSeconds || n < -maxTTLSeconds {
		return 0
	}
	return time.Duration(n) * time.Second
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
