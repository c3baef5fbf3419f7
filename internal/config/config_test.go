package config

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ROTORCTL_ENV", "NATS_USER", "NATS_PASSWORD", "NATS_HOST", "NATS_PORT",
		"ROTORCTL_PREAOS_SECONDS", "ROTORCTL_METRICS_ADDR", "ROTORCTL_SCHEDULER_ENABLED"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATSHost != "localhost" || cfg.NATSPort != "4222" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.SchedulerEnabled {
		t.Errorf("expected scheduler enabled by default")
	}
}

func TestLoadRequiresPasswordInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_USER", "svc")
	if _, err := Load(); !errors.Is(err, ErrMissingPassword) {
		t.Errorf("got %v, want ErrMissingPassword", err)
	}
}

func TestLoadDevelopmentModeDefaultsPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROTORCTL_ENV", "development")
	t.Setenv("NATS_USER", "svc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATSPassword == "" {
		t.Errorf("expected a default password to be substituted in development mode")
	}
}

func TestNATSURLIncludesCredentialsWhenSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROTORCTL_ENV", "development")
	t.Setenv("NATS_USER", "svc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	url := cfg.NATSURL()
	if url == "" {
		t.Fatal("expected non-empty URL")
	}
	if !strings.HasPrefix(url, "nats://svc:") || !strings.HasSuffix(url, "@localhost:4222") {
		t.Errorf("NATSURL() does not embed the NATS_USER credentials: %q", url)
	}
}
