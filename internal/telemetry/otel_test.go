package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		enabled  bool
	}{
		{"disabled", "http://localhost:4318", false},
		{"no endpoint", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), "mafia-test", tt.endpoint, tt.enabled)
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "mafia-test", "http://127.0.0.1:1/v1/traces", true)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	// No spans were recorded, so shutdown has nothing to export.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
