// Package identity projects raw provider profiles onto a fixed set of fields.
package identity

// Whitelist is the ordered set of profile fields a provider may contribute.
type Whitelist []string

// ServiceIdentity holds only whitelisted profile fields.
type ServiceIdentity map[string]any

// Normalize copies the whitelisted keys present in payload. Absent keys are
// omitted, not defaulted, and everything else is dropped.
func Normalize(payload map[string]any, w Whitelist) ServiceIdentity {
	out := make(ServiceIdentity, len(w))
	for _, field := range w {
		if v, ok := payload[field]; ok {
			out[field] = v
		}
	}
	return out
}

func (s ServiceIdentity) ID() string {
	return s.String("id")
}

func (s ServiceIdentity) Email() string {
	return s.String("email")
}

func (s ServiceIdentity) Name() string {
	return s.String("name")
}

// String returns the field as a string, or "" when it is absent or not a string.
func (s ServiceIdentity) String(field string) string {
	v, _ := s[field].(string)
	return v
}

// Bool returns the field as a bool. Providers sometimes send "true"/"false"
// strings instead of JSON booleans; both are accepted.
func (s ServiceIdentity) Bool(field string) bool {
	switch v := s[field].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
