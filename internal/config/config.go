package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	DevServer  DevServerConfig  `yaml:"devserver"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig describes the backend the client talks to
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TokenStoreConfig selects where credentials are persisted
type TokenStoreConfig struct {
	Driver string `yaml:"driver"` // file | sqlite | postgres | memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RealtimeConfig selects the realtime transport
type RealtimeConfig struct {
	Transport string `yaml:"transport"` // websocket | nats | mqtt
	URL       string `yaml:"url"`
	Prefix    string `yaml:"prefix"`
}

// DashboardConfig represents the local dashboard API
type DashboardConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port
func (d DashboardConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// DevServerConfig represents the development backend
type DevServerConfig struct {
	Host             string         `yaml:"host"`
	Port             int            `yaml:"port"`
	DeviceAPIKey     string         `yaml:"device_api_key"`
	AdminUsername    string         `yaml:"admin_username"`
	AdminPassword    string         `yaml:"admin_password"`
	AllowedOrigins   []string       `yaml:"allowed_origins"`
	FrontendURL      string         `yaml:"frontend_url"`
	PublishNATS      bool           `yaml:"publish_nats"`
	PublishMQTT      bool           `yaml:"publish_mqtt"`
	Emulator         EmulatorConfig `yaml:"emulator"`
	OfflineThreshold time.Duration  `yaml:"offline_threshold"`
}

// Addr returns host:port
func (d DevServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// EmulatorConfig controls the built-in unit emulator
type EmulatorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MQTTConfig represents MQTT configuration
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	var cfg Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("file", filename).Msg("Config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("unmarshal config: %w", err)
			}
		}
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if apiURL := os.Getenv("UNITLINK_API_URL"); apiURL != "" {
		c.API.BaseURL = apiURL
	}

	if driver := os.Getenv("UNITLINK_TOKEN_STORE"); driver != "" {
		c.TokenStore.Driver = driver
	}

	if transport := os.Getenv("UNITLINK_REALTIME_TRANSPORT"); transport != "" {
		c.Realtime.Transport = transport
	}

	if frontend := os.Getenv("FRONTEND_URL"); frontend != "" {
		c.DevServer.FrontendURL = frontend
	}

	if key := os.Getenv("UNITLINK_DEVICE_API_KEY"); key != "" {
		c.DevServer.DeviceAPIKey = key
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}

	if jwtSecret := os.Getenv("UNITLINK_JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.DevServer.Port = p
		}
	}
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "unitlink"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5000/api"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 15 * time.Second
	}

	if c.TokenStore.Driver == "" {
		c.TokenStore.Driver = "file"
	}
	if c.TokenStore.Driver == "file" && c.TokenStore.Path == "" {
		c.TokenStore.Path = defaultCredentialPath()
	}

	if c.Realtime.Transport == "" {
		c.Realtime.Transport = "websocket"
	}
	if c.Realtime.Prefix == "" {
		c.Realtime.Prefix = "unitlink"
	}

	if c.Dashboard.Host == "" {
		c.Dashboard.Host = "127.0.0.1"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}

	if c.DevServer.Host == "" {
		c.DevServer.Host = "0.0.0.0"
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = 5000
	}
	if c.DevServer.AdminUsername == "" {
		c.DevServer.AdminUsername = "admin"
	}
	if len(c.DevServer.AllowedOrigins) == 0 {
		c.DevServer.AllowedOrigins = []string{"*"}
	}
	if c.DevServer.FrontendURL == "" {
		c.DevServer.FrontendURL = "http://localhost:3000"
	}
	if c.DevServer.Emulator.Interval == 0 {
		c.DevServer.Emulator.Interval = 5 * time.Second
	}
	if c.DevServer.OfflineThreshold == 0 {
		c.DevServer.OfflineThreshold = 2 * time.Minute
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "unitlink.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "unitlink"
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 30 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func (c *Config) validate() error {
	switch c.TokenStore.Driver {
	case "file", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("invalid token_store driver: %s", c.TokenStore.Driver)
	}
	if (c.TokenStore.Driver == "sqlite" || c.TokenStore.Driver == "postgres") && c.TokenStore.DSN == "" {
		return fmt.Errorf("token_store driver %s requires dsn", c.TokenStore.Driver)
	}

	switch c.Realtime.Transport {
	case "websocket", "nats", "mqtt":
	default:
		return fmt.Errorf("invalid realtime transport: %s", c.Realtime.Transport)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	return nil
}

func defaultCredentialPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "unitlink-credentials.yaml"
	}
	return filepath.Join(dir, "unitlink", "credentials.yaml")
}
