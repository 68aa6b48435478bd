package config

import (
	"testing"
	"time"
)

func TestEnvOverridesDefaults(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"GATEWAY_ID":      "gw-7",
		"NODE_ID":         "7",
		"JWT_SECRET":      "s3cret",
		"NATS_SERVERS":    "nats://a:4222, nats://b:4222",
		"BROKER":          "kafka",
		"GROUP_PAGE_SIZE": "50",
	}
	if err := ApplyEnv(&cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.GatewayID != "gw-7" || cfg.NodeID != 7 || cfg.JWT.Secret != "s3cret" {
		t.Fatalf("unexpected %+v", cfg)
	}
	if len(cfg.Nats.Servers) != 2 || cfg.Nats.Servers[1] != "nats://b:4222" {
		t.Fatalf("servers %v", cfg.Nats.Servers)
	}
	if cfg.Notify.Broker != BrokerKafka || cfg.Rooms.GroupPageSize != 50 {
		t.Fatalf("unexpected %+v", cfg)
	}
	// untouched
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr %q", cfg.HTTPAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) string {
		if k == "NODE_ID" {
			return "abc"
		}
		return ""
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyYAMLOverlay(t *testing.T) {
	cfg := Default()
	doc := []byte(`
gatewayId: gw-remote
notify:
  profileTimeout: 750ms
rooms:
  groupPageSize: 20
`)
	if err := ApplyYAML(&cfg, doc); err != nil {
		t.Fatal(err)
	}
	if cfg.GatewayID != "gw-remote" || cfg.Notify.ProfileTimeout != 750*time.Millisecond || cfg.Rooms.GroupPageSize != 20 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Notify.PublishTimeout != 5*time.Second {
		t.Fatalf("keys absent from the document must keep their value, got %v", cfg.Notify.PublishTimeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing secret must fail")
	}
	cfg.JWT.Secret = "x"
	cfg.Notify.Broker = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown broker must fail")
	}
}
