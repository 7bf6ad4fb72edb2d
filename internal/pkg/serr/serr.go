package serr

import (
	"fmt"
	"runtime/debug"
)

// ServiceError is an error that knows the HTTP status it should be reported with.
// Env carries diagnostic key/value pairs that are logged but never sent to clients.
type ServiceError struct {
	Err        error
	Msg        string
	StackTrace string
	StatusCode int
	Env        map[string]string
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
	}
}

// With sets a diagnostic value and returns the error for chaining.
func (e *ServiceError) With(key, val string) *ServiceError {
	e.Env[key] = val
	return e
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
