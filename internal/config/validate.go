package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minIngestWorkers   = 1
	maxIngestWorkers   = 64
	minQueueSize       = 1
	maxQueueSize       = 4096
	minShutdownTimeout = 1 * time.Second
	minDifyTimeout     = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLog(&cfg.Log)...)
	errs = append(errs, validateMinio(&cfg.Minio)...)
	errs = append(errs, validateDify(&cfg.Dify)...)
	errs = append(errs, validateIngest(&cfg.Ingest)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.Addr != "" {
		if _, _, err := net.SplitHostPort(s.Addr); err != nil {
			errs = append(errs, fmt.Errorf("addr: must be host:port, got %q", s.Addr))
		}
	}

	if s.ShutdownTimeout != "" {
		d, err := time.ParseDuration(s.ShutdownTimeout)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("shutdown_timeout: %w", err))
		case d < minShutdownTimeout:
			errs = append(errs, fmt.Errorf("shutdown_timeout: must be at least %s, got %s", minShutdownTimeout, d))
		}
	}

	return errs
}

func validateLog(l *LogConfig) []error {
	var errs []error

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level: must be debug, info, warn, or error, got %q", l.Level))
	}

	switch strings.ToLower(l.Format) {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format: must be auto, text, or json, got %q", l.Format))
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("log max_size_mb: must be at least 1, got %d", l.MaxSizeMB))
	}
	if l.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log max_backups: must not be negative, got %d", l.MaxBackups))
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("log max_age_days: must not be negative, got %d", l.MaxAgeDays))
	}

	return errs
}

func validateMinio(m *MinioConfig) []error {
	var errs []error

	// The client takes a bare host:port; a scheme selects TLS via `secure`.
	if strings.Contains(m.Endpoint, "://") {
		errs = append(errs, fmt.Errorf(
			"minio endpoint: must be host:port without scheme, got %q (set secure=true for TLS)", m.Endpoint))
	}

	return errs
}

func validateDify(d *DifyConfig) []error {
	var errs []error

	if raw := strings.TrimSpace(d.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("dify base_url: must be an http(s) URL, got %q", raw))
		}
	}

	if d.Timeout != "" {
		t, err := time.ParseDuration(d.Timeout)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("dify timeout: %w", err))
		case t < minDifyTimeout:
			errs = append(errs, fmt.Errorf("dify timeout: must be at least %s, got %s", minDifyTimeout, t))
		}
	}

	return errs
}

func validateIngest(i *IngestConfig) []error {
	var errs []error

	if i.Workers < minIngestWorkers || i.Workers > maxIngestWorkers {
		errs = append(errs, fmt.Errorf("ingest workers: must be between %d and %d, got %d",
			minIngestWorkers, maxIngestWorkers, i.Workers))
	}

	if i.QueueSize < minQueueSize || i.QueueSize > maxQueueSize {
		errs = append(errs, fmt.Errorf("ingest queue_size: must be between %d and %d, got %d",
			minQueueSize, maxQueueSize, i.QueueSize))
	}

	if raw := strings.TrimSpace(i.AutoDify); !strings.EqualFold(raw, "auto") {
		if _, ok := ParseBool(raw); !ok {
			errs = append(errs, fmt.Errorf("ingest auto_dify: must be auto, true, or false, got %q", i.AutoDify))
		}
	}

	if i.MergeMaxChars < 1 {
		errs = append(errs, fmt.Errorf("ingest merge_max_chars: must be at least 1, got %d", i.MergeMaxChars))
	}
	if i.MergeMaxSeconds < 1 {
		errs = append(errs, fmt.Errorf("ingest merge_max_seconds: must be at least 1, got %d", i.MergeMaxSeconds))
	}

	return errs
}
