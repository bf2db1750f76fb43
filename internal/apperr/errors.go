// Package apperr holds the error taxonomy shared by the settings store, the
// push channels and cloud sync.
//
// Nothing here is fatal: every error ends up at the action boundary
// (internal/app) and is turned into a transient notice.
package apperr

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is wrapped by storage drivers when the backend cannot
// be reached (closed file, dropped connection, ...).
var ErrStorageUnavailable = errors.New("settings storage unavailable")

// ConfigError reports missing or malformed service or sync configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// Configf builds a ConfigError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// DeliveryError reports a non-2xx response or a service-reported failure code.
// Code is the service's own status field (errcode / code); zero when the
// failure was at HTTP level.
type DeliveryError struct {
	Service    string
	StatusCode int
	Code       int
	Message    string
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Message != "" && e.Code != 0:
		return fmt.Sprintf("%s delivery failed: code %d: %s", e.Service, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s delivery failed: %s", e.Service, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s delivery failed: HTTP %d", e.Service, e.StatusCode)
	default:
		return fmt.Sprintf("%s delivery failed: code %d", e.Service, e.Code)
	}
}

// ImportError wraps a settings import that could not be parsed. The store is
// left unchanged when it is returned.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string { return "import: " + e.Err.Error() }
func (e *ImportError) Unwrap() error { return e.Err }

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDelivery reports whether err is (or wraps) a DeliveryError.
func IsDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// IsImport reports whether err is (or wraps) an ImportError.
func IsImport(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}
