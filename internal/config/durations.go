package config

import "time"

// ShutdownTimeoutDuration parses the configured graceful shutdown window,
// falling back to the default on empty or malformed input. Validation
// reports malformed values; this keeps callers total.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(s.ShutdownTimeout); err == nil && d > 0 {
		return d
	}

	d, _ := time.ParseDuration(defaultShutdownTimeout)

	return d
}

// TimeoutDuration parses the configured RAG request timeout, falling back
// to the default on empty or malformed input.
func (d DifyConfig) TimeoutDuration() time.Duration {
	if t, err := time.ParseDuration(d.Timeout); err == nil && t > 0 {
		return t
	}

	t, _ := time.ParseDuration(defaultDifyTimeout)

	return t
}
