package config

import "testing"

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Defaults() must validate cleanly, got: %v", err)
	}
}

func TestValidateRejectsWrongSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unsupported schema_version")
	}
}

func TestValidateRequiresTLSWhenPeersConfigured(t *testing.T) {
	cfg := Defaults()
	cfg.Federation.Peers = []string{"peer-a:9443"}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error: federation peers configured without TLS material")
	}

	cfg.Federation.TLSCertFile = "/etc/fck/tls/cert.pem"
	cfg.Federation.TLSKeyFile = "/etc/fck/tls/key.pem"
	cfg.Federation.TLSCAFile = "/etc/fck/tls/ca.pem"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected validation to pass once TLS material is set, got: %v", err)
	}
}

func TestValidateRejectsUnrecognizedRoute(t *testing.T) {
	cfg := Defaults()
	cfg.Assistance.RouteOrder = []string{"CARRIER_PIGEON"}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unrecognized assistance route")
	}
}

func TestValidateRejectsLowRateLimitCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.Capacity = 0
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for rate_limit.capacity < 1")
	}
}
