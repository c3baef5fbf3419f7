package bus

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NATSURL == "" {
		t.Error("expected a non-empty default NATS URL")
	}
	if cfg.MaxReconnects <= 0 {
		t.Error("expected MaxReconnects > 0 so a transient outage is retried")
	}
	if cfg.RequestTimeout <= 0 {
		t.Error("expected a positive default RequestTimeout")
	}
}
