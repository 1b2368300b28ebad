package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig      `yaml:"http"`
	GRPC          GRPCConfig      `yaml:"grpc"`
	Database      DatabaseConfig  `yaml:"database"`
	Redis         RedisConfig     `yaml:"redis"`
	Kafka         KafkaConfig     `yaml:"kafka"`
	Booking       BookingConfig   `yaml:"booking"`
	Inventory     InventoryConfig `yaml:"inventory"`
	Fare          FareConfig      `yaml:"fare"`
	Worker        WorkerConfig    `yaml:"worker"`
	Log           LogConfig       `yaml:"log"`
	ReferencePath string          `yaml:"reference_path"`
}

type HTTPConfig struct {
	Address     string   `yaml:"address"`
	SwaggerDir  string   `yaml:"swagger_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig points at the Postgres PNR registry. An empty host keeps the
// registry in memory.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// RedisConfig enables the booking cache, session store and submission guard.
// An empty address keeps sessions in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BookingConfig struct {
	AdvanceDays            int `yaml:"advance_days"`
	SessionTTLMinutes      int `yaml:"session_ttl_minutes"`
	SubmissionTTLHours     int `yaml:"submission_ttl_hours"`
	PNRCacheTTLSeconds     int `yaml:"pnr_cache_ttl_seconds"`
	UTCOffsetMinutes       int `yaml:"utc_offset_minutes"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// Location is the fixed zone journey dates and departure times are expressed in.
func (b BookingConfig) Location() *time.Location {
	if b.UTCOffsetMinutes == 0 {
		return time.UTC
	}
	sign := "+"
	offset := b.UTCOffsetMinutes
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, offset/60, offset%60), b.UTCOffsetMinutes*60)
}

type InventoryConfig struct {
	LockTimeoutMillis int `yaml:"lock_timeout_ms"`
}

type FareConfig struct {
	TaxRate     string `yaml:"tax_rate"`
	MinimumFare string `yaml:"minimum_fare"`
}

type WorkerConfig struct {
	ArchiveSweepMinutes int `yaml:"archive_sweep_minutes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads .env (if present) into the environment, then the YAML file
// at path, then applies environment overrides and defaults. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := os.Getenv("GRPC_ADDRESS"); v != "" {
		c.GRPC.Address = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REFERENCE_PATH"); v != "" {
		c.ReferencePath = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "booking-notifications"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "railbooking-notifier"
	}
	if c.Booking.AdvanceDays <= 0 {
		c.Booking.AdvanceDays = 120
	}
	if c.Booking.SessionTTLMinutes <= 0 {
		c.Booking.SessionTTLMinutes = 15
	}
	if c.Booking.SubmissionTTLHours <= 0 {
		c.Booking.SubmissionTTLHours = 24
	}
	if c.Booking.PNRCacheTTLSeconds <= 0 {
		c.Booking.PNRCacheTTLSeconds = 60
	}
	if c.Booking.ShutdownTimeoutSeconds <= 0 {
		c.Booking.ShutdownTimeoutSeconds = 10
	}
	if c.Inventory.LockTimeoutMillis <= 0 {
		c.Inventory.LockTimeoutMillis = 2000
	}
	if c.Fare.TaxRate == "" {
		c.Fare.TaxRate = "0.18"
	}
	if c.Fare.MinimumFare == "" {
		c.Fare.MinimumFare = "1.00"
	}
	if c.Worker.ArchiveSweepMinutes <= 0 {
		c.Worker.ArchiveSweepMinutes = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
