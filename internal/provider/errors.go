package provider

import "errors"

// Provider failure taxonomy. Callers classify with errors.Is; all three
// are instrument-local and recorded as a failed sync, never fatal to a
// batch run.
var (
	// ErrProviderUnavailable covers transport errors, timeouts and 5xx
	// responses. Retryable on the next scheduled run.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRateLimited is returned when the provider throttles us.
	ErrProviderRateLimited = errors.New("provider rate limited")

	// ErrProviderNotFound is returned for symbols unknown to the
	// provider. Permanent until the instrument catalog is corrected.
	ErrProviderNotFound = errors.New("symbol not found")
)
