package provider

import (
	"errors"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/oauth"
)

func communicationError(provider, op string, err error) error {
	ce := &oauth.CommunicationError{
		Provider: provider,
		Op:       op,
		Err:      err,
	}

	var rerr *ResponseError
	if errors.As(err, &rerr) {
		ce.StatusCode = rerr.StatusCode
		ce.Response = rerr.Body
	}

	return ce
}

func responseAttrs(err error) []any {
	attrs := []any{"error", err}

	var rerr *ResponseError
	if errors.As(err, &rerr) && rerr.StatusCode != 0 {
		attrs = append(attrs, "provider_status", rerr.StatusCode, "provider_response", rerr.Body)
	}

	return attrs
}
