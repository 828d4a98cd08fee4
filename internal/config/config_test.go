package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kitchen_requests/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" || cfg.NotifyBroker != "kafka" {
		t.Fatalf("defaults: got=%+v", cfg)
	}
	if cfg.KafkaTopic != "request-status-changes" {
		t.Fatalf("topic: got=%s", cfg.KafkaTopic)
	}
	if cfg.RelayInterval != time.Second || cfg.StreamHeartbeat != 15*time.Second {
		t.Fatalf("durations: got=%v %v", cfg.RelayInterval, cfg.StreamHeartbeat)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
http_addr: ":9090"
db_driver: postgres
db_dsn: "postgres://kitchen@localhost/kitchen"
notify_broker: rabbitmq
kafka_brokers: ["k1:9092", "k2:9092"]
relay_interval_ms: 250
stream_buffer: 8
menu_items:
  - id: 1
    name: Burger
  - id: 2
    name: Fries
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2,,")
	t.Setenv("STREAM_BUFFER", "32")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env must win over file: got=%s", cfg.HTTPAddr)
	}
	if cfg.DBDriver != "postgres" || cfg.NotifyBroker != "rabbitmq" {
		t.Fatalf("file values: got=%+v", cfg)
	}
	if strings.Join(cfg.KafkaBrokers, ",") != "a:1,b:2" {
		t.Fatalf("brokers: got=%v", cfg.KafkaBrokers)
	}
	if cfg.RelayInterval != 250*time.Millisecond {
		t.Fatalf("relay interval: got=%v", cfg.RelayInterval)
	}
	if cfg.StreamBuffer != 32 {
		t.Fatalf("stream buffer: got=%d", cfg.StreamBuffer)
	}
	if len(cfg.MenuItems) != 2 || cfg.MenuItems[1].ID != 2 || cfg.MenuItems[1].Name != "Fries" {
		t.Fatalf("menu items: got=%+v", cfg.MenuItems)
	}
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("log_mode: production\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogMode != "production" {
		t.Fatalf("log mode: got=%s", cfg.LogMode)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"bad broker", map[string]string{"NOTIFY_BROKER": "nats"}},
		{"bad int", map[string]string{"RELAY_BATCH": "many"}},
		{"zero batch", map[string]string{"RELAY_BATCH": "0"}},
		{"zero heartbeat", map[string]string{"STREAM_HEARTBEAT_SEC": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("want error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file: want error")
	}
}

func TestValidate_MenuItems(t *testing.T) {
	cfg := Defaults()
	cfg.MenuItems = []model.MenuItem{{ID: 1, Name: "Burger"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, bad := range []model.MenuItem{{Name: "no id"}, {ID: 2, Name: "  "}} {
		cfg.MenuItems = []model.MenuItem{bad}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Validate(%+v): want error", bad)
		}
	}
}
