// Copyright 2025 James Ross
package config

import (
	"fmt"
	"strings"
)

var validReconcileIntervals = map[string]bool{"never": true, "hourly": true, "daily": true, "weekly": true}
var validReconcileScopes = map[string]bool{"all": true, "24h": true, "7days": true}

// Validate checks Config for fail-fast configuration errors: a missing
// Target URL/token, an out-of-range tunable, or an unrecognised
// reconcile interval/scope.
func Validate(c *Config) error {
	var errs []string

	if c.Target.URL == "" {
		errs = append(errs, "target.url is required")
	} else if !strings.HasPrefix(c.Target.URL, "http://") && !strings.HasPrefix(c.Target.URL, "https://") {
		errs = append(errs, "target.url must start with http:// or https://")
	}
	c.Target.URL = strings.TrimSuffix(c.Target.URL, "/")

	if c.Target.Token == "" {
		errs = append(errs, "target.token is required")
	} else if len(c.Target.Token) < 10 {
		errs = append(errs, "target.token appears invalid (too short)")
	}

	if c.MaxRetries < 1 || c.MaxRetries > 20 {
		errs = append(errs, "max_retries must be between 1 and 20")
	}
	if c.PollInterval < 0.1 || c.PollInterval > 60.0 {
		errs = append(errs, "poll_interval must be between 0.1 and 60.0")
	}
	if c.Target.ConnectTimeout < 1.0 || c.Target.ConnectTimeout > 30.0 {
		errs = append(errs, "target.connect_timeout must be between 1.0 and 30.0")
	}
	if c.Target.ReadTimeout < 5.0 || c.Target.ReadTimeout > 120.0 {
		errs = append(errs, "target.read_timeout must be between 5.0 and 120.0")
	}
	if c.DLQRetentionDays < 1 || c.DLQRetentionDays > 365 {
		errs = append(errs, "dlq_retention_days must be between 1 and 365")
	}
	if c.MaxTags < 10 || c.MaxTags > 500 {
		errs = append(errs, "max_tags must be between 10 and 500")
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker.failure_threshold must be at least 1")
	}

	c.Reconcile.Interval = strings.ToLower(c.Reconcile.Interval)
	if !validReconcileIntervals[c.Reconcile.Interval] {
		errs = append(errs, fmt.Sprintf("reconcile.interval must be one of never, hourly, daily, weekly, got: %s", c.Reconcile.Interval))
	}
	c.Reconcile.Scope = strings.ToLower(c.Reconcile.Scope)
	if !validReconcileScopes[c.Reconcile.Scope] {
		errs = append(errs, fmt.Sprintf("reconcile.scope must be one of all, 24h, 7days, got: %s", c.Reconcile.Scope))
	}

	for _, m := range c.PathMappings {
		if m.SourcePattern == "" || m.TargetPattern == "" {
			errs = append(errs, fmt.Sprintf("path_mappings[%s]: source_pattern and target_pattern are required", m.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
