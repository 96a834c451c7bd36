package config

import (
	"fmt"
	"regexp"
	"strings"
)

var guidRegex = regexp.MustCompile(`^\{[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\}$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

const (
	// The driver supports 16 displays per adapter.
	driverDisplayLimit = 16

	minTimeoutMs = 10
	maxTimeoutMs = 60000
)

// ValidationResult separates errors that make the config unusable from
// values that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Clamped values are warnings; an adapter
// GUID that cannot be parsed is fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if !guidRegex.MatchString(c.AdapterGUID) {
		r.Fatals = append(r.Fatals, fmt.Errorf("adapter_guid %q is not a braced GUID", c.AdapterGUID))
	}

	if c.MaxDisplays < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_displays %d is below minimum 1, clamping", c.MaxDisplays))
		c.MaxDisplays = 1
	} else if c.MaxDisplays > driverDisplayLimit {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_displays %d exceeds driver limit %d, clamping", c.MaxDisplays, driverDisplayLimit))
		c.MaxDisplays = driverDisplayLimit
	}

	for _, t := range []struct {
		name string
		ms   *int
	}{
		{"timeouts.version_ms", &c.Timeouts.VersionMs},
		{"timeouts.add_ms", &c.Timeouts.AddMs},
		{"timeouts.remove_ms", &c.Timeouts.RemoveMs},
		{"timeouts.update_ms", &c.Timeouts.UpdateMs},
	} {
		switch {
		case *t.ms == 0:
		case *t.ms < minTimeoutMs:
			r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", t.name, *t.ms, minTimeoutMs))
			*t.ms = minTimeoutMs
		case *t.ms > maxTimeoutMs:
			r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", t.name, *t.ms, maxTimeoutMs))
			*t.ms = maxTimeoutMs
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}
