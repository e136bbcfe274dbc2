package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.PathPrefix != "" && !strings.HasPrefix(s.PathPrefix, "/") {
		errs = append(errs, "path_prefix must start with /")
	}

	for _, d := range []struct {
		name string
		ok   bool
	}{
		{"read_timeout", s.ReadTimeout > 0},
		{"write_timeout", s.WriteTimeout > 0},
		{"idle_timeout", s.IdleTimeout > 0},
		{"read_header_timeout", s.ReadHeaderTimeout > 0},
		{"shutdown_timeout", s.ShutdownTimeout > 0},
	} {
		if !d.ok {
			errs = append(errs, d.name+" must be positive")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	if err := oneOf("level", l.Level, "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := oneOf("format", l.Format, "json", "text"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := oneOf("output", l.Output, "stdout", "stderr"); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates ledger configuration
func (l *LedgerConfig) Validate() error {
	var errs []string

	if _, err := l.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q: %v", l.Timezone, err))
	}
	if strings.TrimSpace(l.OutputDir) == "" {
		errs = append(errs, "output_dir cannot be empty")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}
