package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/radiolink/radiolink/pkg/radio"
)

// Config represents the daemon configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	JWT        JWTConfig        `yaml:"jwt"`
	Radio      RadioConfig      `yaml:"radio"`
	Simulation SimulationConfig `yaml:"simulation"`
	Airlink    AirlinkConfig    `yaml:"airlink"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LogConfig represents logging configuration. When File is set logs are
// also written as JSON to a rotating file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AdminUser      string        `yaml:"admin_user"`
	AdminPassword  string        `yaml:"admin_password"`
}

// DatabaseConfig represents database configuration. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// MQTTConfig represents MQTT integration configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// RadioConfig is the transceiver configuration. Enumerations are given by
// name, key and address as hex.
type RadioConfig struct {
	FrequencyHz   uint32        `yaml:"frequency_hz"`
	Channel       uint8         `yaml:"channel"`
	TxPower       string        `yaml:"tx_power"`
	DataRate      string        `yaml:"data_rate"`
	Modulation    string        `yaml:"modulation"`
	Security      string        `yaml:"security"`
	NetworkKey    string        `yaml:"network_key"`
	DeviceAddress string        `yaml:"device_address"`
	NetworkID     uint16        `yaml:"network_id"`
	AutoAck       *bool         `yaml:"auto_ack"`
	AutoRetry     *bool         `yaml:"auto_retry"`
	MaxRetries    *uint8        `yaml:"max_retries"`
	TxTimeout     time.Duration `yaml:"tx_timeout"`
	InitialState  string        `yaml:"initial_state"`
	TxHistory     int           `yaml:"tx_history"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// SimulationConfig tunes the simulated channel model
type SimulationConfig struct {
	Seed               int64 `yaml:"seed"`
	BaseRSSI           int8  `yaml:"base_rssi"`
	RSSIVariation      int   `yaml:"rssi_variation"`
	LossPercent        *int  `yaml:"loss_percent"`
	JoinFailurePercent *int  `yaml:"join_failure_percent"`
	ArrivalPercent     *int  `yaml:"arrival_percent"`
	MaxNetworks        int   `yaml:"max_networks"`
}

// AirlinkConfig represents the UDP air-link bridge configuration
type AirlinkConfig struct {
	Enabled bool     `yaml:"enabled"`
	UDPBind string   `yaml:"udp_bind"`
	Peers   []string `yaml:"peers"`
	Seal    bool     `yaml:"seal"`
}

// TelemetryConfig represents the statistics recorder configuration
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads the configuration file, applies environment overrides and
// fills in defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data the same way Load does.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
		c.NATS.Enabled = true
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if seed := os.Getenv("RADIO_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Simulation.Seed = v
		} else {
			log.Warn().Str("value", seed).Msg("ignoring invalid RADIO_SEED")
		}
	}
}

func (c *Config) validateAndSetDefaults() error {
	if c.Server.Name == "" {
		c.Server.Name = "radiod"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 60 * time.Second
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.AdminUser == "" {
		c.API.AdminUser = "admin"
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = c.Server.Name
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "radio"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Server.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "radiolink"
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos %d out of range 0..2", c.MQTT.QoS)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled without broker")
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.API.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required when the api is enabled")
	}

	if c.Simulation.BaseRSSI == 0 {
		c.Simulation.BaseRSSI = -70
	}
	if c.Simulation.RSSIVariation == 0 {
		c.Simulation.RSSIVariation = 10
	}
	if c.Simulation.MaxNetworks == 0 {
		c.Simulation.MaxNetworks = 5
	}
	for name, p := range map[string]*int{
		"loss_percent":         c.Simulation.LossPercent,
		"join_failure_percent": c.Simulation.JoinFailurePercent,
		"arrival_percent":      c.Simulation.ArrivalPercent,
	} {
		if p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("simulation %s %d out of range 0..100", name, *p)
		}
	}

	if c.Airlink.UDPBind == "" {
		c.Airlink.UDPBind = "0.0.0.0:1700"
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = 30 * time.Second
	}

	if c.Radio.TxHistory == 0 {
		c.Radio.TxHistory = 256
	}
	if c.Radio.PollInterval == 0 {
		c.Radio.PollInterval = 50 * time.Millisecond
	}
	if c.Radio.InitialState == "" {
		c.Radio.InitialState = "IDLE"
	}
	if _, err := radio.ParsePowerState(c.Radio.InitialState); err != nil {
		return fmt.Errorf("radio initial_state: %w", err)
	}

	rc, err := c.RadioConfig()
	if err != nil {
		return err
	}
	if err := radio.ValidateConfig(rc); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	return nil
}

// RadioConfig maps the radio section onto radio.Config. Unset fields take
// the values of radio.DefaultConfig.
func (c *Config) RadioConfig() (radio.Config, error) {
	rc := radio.DefaultConfig()
	r := c.Radio

	if r.FrequencyHz != 0 {
		rc.FrequencyHz = r.FrequencyHz
	}
	if r.Channel != 0 {
		rc.Channel = r.Channel
	}
	if r.NetworkID != 0 {
		rc.NetworkID = r.NetworkID
	}
	if r.AutoAck != nil {
		rc.AutoAck = *r.AutoAck
	}
	if r.AutoRetry != nil {
		rc.AutoRetry = *r.AutoRetry
	}
	if r.MaxRetries != nil {
		rc.MaxRetries = *r.MaxRetries
	}
	if r.TxTimeout != 0 {
		rc.TxTimeout = r.TxTimeout
	}

	var err error
	if r.TxPower != "" {
		if rc.TxPower, err = radio.ParseTxPower(r.TxPower); err != nil {
			return rc, fmt.Errorf("radio tx_power: %w", err)
		}
	}
	if r.DataRate != "" {
		if rc.DataRate, err = radio.ParseDataRate(r.DataRate); err != nil {
			return rc, fmt.Errorf("radio data_rate: %w", err)
		}
	}
	if r.Modulation != "" {
		if rc.Modulation, err = radio.ParseModulation(r.Modulation); err != nil {
			return rc, fmt.Errorf("radio modulation: %w", err)
		}
	}
	if r.Security != "" {
		if rc.Security, err = radio.ParseSecurityMode(r.Security); err != nil {
			return rc, fmt.Errorf("radio security: %w", err)
		}
	}
	if r.NetworkKey != "" {
		if rc.NetworkKey, err = radio.ParseNetworkKey(r.NetworkKey); err != nil {
			return rc, fmt.Errorf("radio network_key: %w", err)
		}
	}
	if r.DeviceAddress != "" {
		if rc.DeviceAddress, err = radio.ParseAddress(r.DeviceAddress); err != nil {
			return rc, fmt.Errorf("radio device_address: %w", err)
		}
	}
	return rc, nil
}

// SimulationParams maps the simulation section onto the channel model
// parameters. A zero seed is replaced by the current time.
func (c *Config) SimulationParams() radio.SimulationParams {
	p := radio.DefaultSimulationParams()
	s := c.Simulation
	if s.Seed != 0 {
		p.Seed = s.Seed
	}
	if s.BaseRSSI != 0 {
		p.BaseRSSI = s.BaseRSSI
	}
	if s.RSSIVariation != 0 {
		p.RSSIVariation = s.RSSIVariation
	}
	if s.LossPercent != nil {
		p.LossPercent = *s.LossPercent
	}
	if s.JoinFailurePercent != nil {
		p.JoinFailurePercent = *s.JoinFailurePercent
	}
	if s.ArrivalPercent != nil {
		p.ArrivalPercent = *s.ArrivalPercent
	}
	if s.MaxNetworks != 0 {
		p.MaxNetworks = s.MaxNetworks
	}
	return p
}

// PrintConfigSummary prints a configuration summary
func (c *Config) PrintConfigSummary() {
	rc, _ := c.RadioConfig()

	fmt.Printf("=== Radio Daemon Configuration ===\n")
	fmt.Printf("Server: %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("Radio: %.3f MHz, channel %d, %s, %s, power %s (%d dBm)\n",
		float64(rc.FrequencyHz)/1000000, rc.Channel, rc.DataRate, rc.Modulation,
		rc.TxPower, rc.TxPower.DBm())
	fmt.Printf("  Address: %s, network %d, security %s\n", rc.DeviceAddress, rc.NetworkID, rc.Security)
	fmt.Printf("  Auto ack: %v, auto retry: %v (max %d), tx timeout %s\n",
		rc.AutoAck, rc.AutoRetry, rc.MaxRetries, rc.TxTimeout)
	fmt.Printf("Simulation: loss %s, join failure %s, arrival %s\n",
		percent(c.Simulation.LossPercent, 5),
		percent(c.Simulation.JoinFailurePercent, 10),
		percent(c.Simulation.ArrivalPercent, 5))
	fmt.Printf("API: enabled=%v %s:%d\n", c.API.Enabled, c.API.Host, c.API.Port)
	fmt.Printf("Storage: %s\n", storageKind(c.Database.DSN))
	fmt.Printf("NATS: enabled=%v %s\n", c.NATS.Enabled, c.NATS.URL)
	fmt.Printf("MQTT: enabled=%v %s\n", c.MQTT.Enabled, c.MQTT.Broker)
	fmt.Printf("Airlink: enabled=%v %s peers=%v sealed=%v\n",
		c.Airlink.Enabled, c.Airlink.UDPBind, c.Airlink.Peers, c.Airlink.Seal)
	fmt.Printf("Telemetry interval: %s\n", c.Telemetry.Interval)
	fmt.Printf("==================================\n")
}

func percent(p *int, def int) string {
	if p == nil {
		return fmt.Sprintf("%d%%", def)
	}
	return fmt.Sprintf("%d%%", *p)
}

func storageKind(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return "postgres"
}
