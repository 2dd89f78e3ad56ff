package types

import "fmt"

// ErrorKind classifies how a provider call failed.
type ErrorKind string

const (
	// KindNetwork means no response was received.
	KindNetwork ErrorKind = "network"
	// KindStatus means the provider answered with a non-2xx status.
	KindStatus ErrorKind = "status"
	// KindDecode means the response could not be understood.
	KindDecode ErrorKind = "decode"
)

// ProviderError is the structured error every outbound HTTP client returns.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Code       string
	Type       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether the call may succeed if repeated.
func (e *ProviderError) Temporary() bool {
	return e.Kind == KindNetwork || e.StatusCode >= 500
}

// Detail converts the error into the diagnostic block stored on a failed job.
func (e *ProviderError) Detail() ErrorDetail {
	return ErrorDetail{
		Provider: e.Provider,
		Status:   e.StatusCode,
		Code:     e.Code,
		Type:     e.Type,
		Message:  e.Message,
	}
}
