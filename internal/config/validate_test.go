package config

import "testing"

func validConfig() *Config {
	return &Config{
		Target: Target{
			URL:            "http://localhost:32400",
			Token:          "0123456789",
			ConnectTimeout: 5,
			ReadTimeout:    30,
		},
		MaxRetries:       5,
		PollInterval:     1,
		DLQRetentionDays: 30,
		MaxTags:          100,
		Breaker:          Breaker{FailureThreshold: 5},
		Reconcile:        Reconcile{Interval: "never", Scope: "24h"},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingTargetURL(t *testing.T) {
	c := validConfig()
	c.Target.URL = ""
	if err := Validate(c); err == nil {
		t.Fatal("expected error for missing target.url")
	}
}

func TestValidateRejectsBadScheme(t *testing.T) {
	c := validConfig()
	c.Target.URL = "ftp://example.com"
	if err := Validate(c); err == nil {
		t.Fatal("expected error for bad scheme")
	}
}

func TestValidateRejectsShortToken(t *testing.T) {
	c := validConfig()
	c.Target.Token = "abc"
	if err := Validate(c); err == nil {
		t.Fatal("expected error for short token")
	}
}

func TestValidateRejectsOutOfRangeMaxRetries(t *testing.T) {
	c := validConfig()
	c.MaxRetries = 50
	if err := Validate(c); err == nil {
		t.Fatal("expected error for out-of-range max_retries")
	}
}

func TestValidateRejectsBadReconcileInterval(t *testing.T) {
	c := validConfig()
	c.Reconcile.Interval = "monthly"
	if err := Validate(c); err == nil {
		t.Fatal("expected error for bad reconcile interval")
	}
}

func TestValidateNormalisesCaseAndTrailingSlash(t *testing.T) {
	c := validConfig()
	c.Target.URL = "http://localhost:32400/"
	c.Reconcile.Interval = "HOURLY"
	if err := Validate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Target.URL != "http://localhost:32400" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Target.URL)
	}
	if c.Reconcile.Interval != "hourly" {
		t.Fatalf("expected lowercased interval, got %q", c.Reconcile.Interval)
	}
}
