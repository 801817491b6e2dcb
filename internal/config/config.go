package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Inverter InverterConfig `mapstructure:"inverter"`
	Sensors  SensorsConfig  `mapstructure:"sensors"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// APIKeyHash is the argon2id hash of the key that may request write tokens.
	APIKeyHash string `mapstructure:"api_key_hash"`
}

type InverterConfig struct {
	// ID is the inverter serial number; prefix with "_" to skip the check.
	ID                string        `mapstructure:"id"`
	Model             string        `mapstructure:"model"`
	Transport         string        `mapstructure:"transport"` // tcp | rtu
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Device            string        `mapstructure:"device"`
	BaudRate          int           `mapstructure:"baud_rate"`
	UnitID            int           `mapstructure:"unit_id"`
	Timeout           time.Duration `mapstructure:"timeout"`
	BatchSize         int           `mapstructure:"read_sensors_batch_size"`
	DefaultRatedPower float64       `mapstructure:"default_rated_power"`
}

type SensorsConfig struct {
	// Selected sensor ids, optionally with a filter ("battery_power:avg");
	// empty selects every sensor of the model.
	Selected     []string      `mapstructure:"selected"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Filters maps sensor ids to filters, for dependencies that are polled
	// without being selected.
	Filters      map[string]string `mapstructure:"filters"`
	FilterWindow time.Duration     `mapstructure:"filter_window"`
}

type MQTTConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Broker           string `mapstructure:"broker"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	DiscoveryPrefix  string `mapstructure:"discovery_prefix"`
	SensorPrefix     string `mapstructure:"sensor_prefix"`
	NumberEntityMode string `mapstructure:"number_entity_mode"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
	Files       []string `mapstructure:"files"`
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 5)

	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("inverter.id", "_")
	v.SetDefault("inverter.transport", "tcp")
	v.SetDefault("inverter.port", 502)
	v.SetDefault("inverter.device", "/dev/ttyUSB0")
	v.SetDefault("inverter.baud_rate", 9600)
	v.SetDefault("inverter.unit_id", 1)
	v.SetDefault("inverter.timeout", "10s")
	v.SetDefault("inverter.read_sensors_batch_size", 60)
	v.SetDefault("inverter.default_rated_power", 5000)

	v.SetDefault("sensors.poll_interval", "5s")
	v.SetDefault("sensors.filter_window", "60s")

	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.number_entity_mode", "auto")

	// SUNSYNK_INVERTER_HOST overrides inverter.host
	v.SetEnvPrefix("SUNSYNK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Inverter.Transport {
	case "tcp":
		if c.Inverter.Host == "" {
			return fmt.Errorf("inverter.host is required for the tcp transport")
		}
	case "rtu":
		if c.Inverter.Device == "" {
			return fmt.Errorf("inverter.device is required for the rtu transport")
		}
	default:
		return fmt.Errorf("inverter.transport must be tcp or rtu, got %q", c.Inverter.Transport)
	}
	if c.Inverter.UnitID < 0 || c.Inverter.UnitID > 247 {
		return fmt.Errorf("inverter.unit_id %d out of range", c.Inverter.UnitID)
	}
	if c.Inverter.BatchSize < 1 || c.Inverter.BatchSize > 125 {
		return fmt.Errorf("inverter.read_sensors_batch_size %d out of range", c.Inverter.BatchSize)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// GetJWTSecret reads the signing secret from the configured environment variable.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
