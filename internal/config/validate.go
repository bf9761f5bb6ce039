package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.PublicURL != "" {
		u, err := url.Parse(cfg.Gateway.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.publicUrl",
				Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Gateway.PublicURL),
			})
		}
	}

	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls",
				Message: "certPath and keyPath are required when TLS is enabled",
			})
		}
	}

	// Telephony validation
	if cfg.Telephony.ValidateSignatures && cfg.Telephony.AuthToken == "" {
		issues = append(issues, ValidationIssue{
			Path:    "telephony.validateSignatures",
			Message: "signature validation requires telephony.authToken",
		})
	}
	if cfg.Telephony.FromNumber != "" && !strings.HasPrefix(cfg.Telephony.FromNumber, "+") {
		issues = append(issues, ValidationIssue{
			Path:    "telephony.fromNumber",
			Message: fmt.Sprintf("must be E.164 formatted (leading +), got %q", cfg.Telephony.FromNumber),
		})
	}

	// Routing validation
	if cfg.Routing.MaxRetries < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "routing.maxRetries",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Routing.MaxRetries),
		})
	}
	if cfg.Routing.SessionIdleMinutes < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "routing.sessionIdleMinutes",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Routing.SessionIdleMinutes),
		})
	}

	// Sweeper validation
	if cfg.Sweeper.StuckCallMinutes < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "sweeper.stuckCallMinutes",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Sweeper.StuckCallMinutes),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	return issues
}
