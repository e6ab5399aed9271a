package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/radiolink/radiolink/pkg/radio"
)

const sampleConfig = `
server:
  name: radiod-test
  version: "1.0"
log:
  level: debug
api:
  enabled: true
  port: 9090
jwt:
  secret: test-secret
radio:
  frequency_hz: 915000000
  channel: 20
  tx_power: high
  data_rate: 250K
  modulation: lora
  security: aes128
  network_key: 000102030405060708090a0b0c0d0e0f
  device_address: "0102030405060708"
  network_id: 4660
  auto_retry: false
  max_retries: 2
  tx_timeout: 2s
simulation:
  seed: 99
  loss_percent: 0
airlink:
  enabled: true
  peers: ["127.0.0.1:1701"]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.Name != "radiod-test" || cfg.API.Port != 9090 {
		t.Errorf("server/api = %+v / %+v", cfg.Server, cfg.API)
	}
	if cfg.Telemetry.Interval != 30*time.Second {
		t.Errorf("telemetry interval default = %s", cfg.Telemetry.Interval)
	}

	rc, err := cfg.RadioConfig()
	if err != nil {
		t.Fatalf("RadioConfig: %v", err)
	}
	if rc.FrequencyHz != 915000000 || rc.Channel != 20 {
		t.Errorf("frequency/channel = %d/%d", rc.FrequencyHz, rc.Channel)
	}
	if rc.TxPower != radio.TxPowerHigh || rc.DataRate != radio.DataRate250K ||
		rc.Modulation != radio.ModulationLoRa || rc.Security != radio.SecurityAES128 {
		t.Errorf("enums = %s %s %s %s", rc.TxPower, rc.DataRate, rc.Modulation, rc.Security)
	}
	if rc.NetworkKey[15] != 0x0f {
		t.Errorf("network key = %s", rc.NetworkKey)
	}
	if rc.DeviceAddress.String() != "0102030405060708" {
		t.Errorf("device address = %s", rc.DeviceAddress)
	}
	if rc.AutoRetry || !rc.AutoAck {
		t.Errorf("auto retry/ack = %v/%v, want false/true", rc.AutoRetry, rc.AutoAck)
	}
	if rc.MaxRetries != 2 || rc.TxTimeout != 2*time.Second {
		t.Errorf("retries/timeout = %d/%s", rc.MaxRetries, rc.TxTimeout)
	}

	sp := cfg.SimulationParams()
	if sp.Seed != 99 || sp.LossPercent != 0 || sp.JoinFailurePercent != 10 {
		t.Errorf("simulation params = %+v", sp)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rc, err := cfg.RadioConfig()
	if err != nil {
		t.Fatalf("RadioConfig: %v", err)
	}
	if rc != radio.DefaultConfig() {
		t.Errorf("radio config = %+v, want defaults", rc)
	}
	if cfg.NATS.SubjectPrefix != "radio" || cfg.MQTT.TopicPrefix != "radiolink" {
		t.Errorf("prefixes = %q / %q", cfg.NATS.SubjectPrefix, cfg.MQTT.TopicPrefix)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad channel", "radio: {channel: 125}", "channel"},
		{"bad modulation", "radio: {modulation: qam}", "modulation"},
		{"bad address", "radio: {device_address: zz}", "device_address"},
		{"too many retries", "radio: {max_retries: 9}", "max retries"},
		{"api without secret", "api: {enabled: true}", "jwt secret"},
		{"loss out of range", "simulation: {loss_percent: 150}", "loss_percent"},
		{"bad initial state", "radio: {initial_state: warp}", "initial_state"},
		{"mqtt without broker", "mqtt: {enabled: true}", "broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://radio@db/radio")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RADIO_SEED", "1234")

	cfg, err := Parse([]byte("api: {enabled: true}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.DSN != "postgres://radio@db/radio" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if cfg.JWT.Secret != "from-env" || cfg.Log.Level != "warn" {
		t.Errorf("jwt/log = %q/%q", cfg.JWT.Secret, cfg.Log.Level)
	}
	if cfg.Simulation.Seed != 1234 {
		t.Errorf("seed = %d", cfg.Simulation.Seed)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radiod.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Radio.Channel != 20 {
		t.Errorf("channel = %d", cfg.Radio.Channel)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
