package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError is one rejected setting.
type ValidationError struct {
	// Field is the setting's path in the project file, e.g. "compiler.mode".
	Field string

	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// Validate checks cfg and returns every problem found; an empty slice
// means the configuration is usable.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(cfg.Extensions) == 0 {
		add("extensions", "at least one file extension is required")
	}
	for i, ext := range cfg.Extensions {
		if ext == "" {
			add(fmt.Sprintf("extensions[%d]", i), "extension must not be empty")
		}
	}

	if cfg.OutputSuffix == "" {
		add("outputSuffix", "output suffix must not be empty")
	}

	if cfg.Indent == "" || strings.Trim(cfg.Indent, " \t") != "" {
		add("indent", "indent must be one or more spaces or tabs, got %q", cfg.Indent)
	}

	if cfg.Workers < 1 {
		add("workers", "workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.CacheSize < 1 {
		add("cacheSize", "cacheSize must be at least 1, got %d", cfg.CacheSize)
	}

	switch cfg.Compiler.Mode {
	case ModeLocal:
		if cfg.Compiler.Path == "" {
			add("compiler.path", "path is required when mode is %q", ModeLocal)
		}
	case ModeDocker:
		if cfg.Compiler.Image == "" {
			add("compiler.image", "image is required when mode is %q", ModeDocker)
		}
	default:
		add("compiler.mode", "mode must be %q or %q, got %q", ModeLocal, ModeDocker, cfg.Compiler.Mode)
	}

	if t := cfg.Compiler.Timeout; t != "" {
		d, err := time.ParseDuration(t)
		switch {
		case err != nil:
			add("compiler.timeout", "invalid duration %q", t)
		case d < 0:
			add("compiler.timeout", "timeout must not be negative, got %s", t)
		}
	}

	return errs
}
