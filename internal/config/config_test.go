package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "REDIS_ADDR", "WORKERS", "QUEUE_SIZE", "RESULT_RETENTION_HOURS", "MAX_BODY_MB", "MQTT_BROKER"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	if cfg.ServerPort != "8080" || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Workers != 4 || cfg.QueueSize != 64 {
		t.Errorf("Unexpected pool defaults: workers=%d queue=%d", cfg.Workers, cfg.QueueSize)
	}
	if cfg.ResultRetention != 24*time.Hour {
		t.Errorf("Expected 24h retention, got %s", cfg.ResultRetention)
	}
	if cfg.MaxBodyBytes != 32<<20 {
		t.Errorf("Expected 32 MiB body limit, got %d", cfg.MaxBodyBytes)
	}
	if cfg.MQTTBroker != "" {
		t.Errorf("Expected mqtt disabled by default, got %s", cfg.MQTTBroker)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("WORKERS", "8")
	t.Setenv("RESULT_RETENTION_HOURS", "2")
	t.Setenv("MAX_BODY_MB", "0.5")
	t.Setenv("MQTT_BROKER", "mqtt:1883")
	t.Setenv("QUEUE_SIZE", "many")

	cfg := FromEnv()

	if cfg.ServerPort != "9090" || cfg.Workers != 8 || cfg.MQTTBroker != "mqtt:1883" {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.ResultRetention != 2*time.Hour {
		t.Errorf("Expected 2h retention, got %s", cfg.ResultRetention)
	}
	if cfg.MaxBodyBytes != 512*1024 {
		t.Errorf("Expected 512 KiB body limit, got %d", cfg.MaxBodyBytes)
	}
	if cfg.QueueSize != 64 {
		t.Errorf("Expected malformed value to fall back to default, got %d", cfg.QueueSize)
	}
}
