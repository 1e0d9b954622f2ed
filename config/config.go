package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RESERVATIONS_DATABASE_HOST or
// RESERVATIONS_RESERVATION_HOLD_TTL.
const EnvPrefix = "RESERVATIONS"

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Reservation ReservationConfig `yaml:"reservation"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Log         LogConfig         `yaml:"log"`
	CORS        CORSConfig        `yaml:"cors"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" split_words:"true" validate:"required"`
	Mode            string        `yaml:"mode" split_words:"true" validate:"oneof=debug release test"`
	Docs            bool          `yaml:"docs" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

type GRPCConfig struct {
	Address string `yaml:"address" split_words:"true"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver" split_words:"true" validate:"oneof=postgres memory"`
	Host        string `yaml:"host" split_words:"true" validate:"required_if=Driver postgres"`
	Port        int    `yaml:"port" split_words:"true" validate:"required_if=Driver postgres,max=65535"`
	User        string `yaml:"user" split_words:"true" validate:"required_if=Driver postgres"`
	Password    string `yaml:"password" split_words:"true"`
	Name        string `yaml:"name" split_words:"true" validate:"required_if=Driver postgres"`
	SSLMode     string `yaml:"ssl_mode" split_words:"true"`
	MaxConns    int    `yaml:"max_conns" split_words:"true" validate:"min=0"`
	AutoMigrate bool   `yaml:"auto_migrate" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

// RedisConfig with an empty Addr disables the snapshot cache and the sweep lock.
type RedisConfig struct {
	Addr        string        `yaml:"addr" split_words:"true"`
	Password    string        `yaml:"password" split_words:"true"`
	DB          int           `yaml:"db" split_words:"true" validate:"min=0"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" split_words:"true" validate:"gte=0"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// KafkaConfig with no brokers disables event publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" split_words:"true"`
	Topic   string   `yaml:"topic" split_words:"true" validate:"required_with=Brokers"`
	GroupID string   `yaml:"group_id" split_words:"true"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type ReservationConfig struct {
	HoldTTL        time.Duration `yaml:"hold_ttl" split_words:"true" validate:"gt=0"`
	MaxRetries     int           `yaml:"max_retries" split_words:"true" validate:"min=0"`
	RetryBase      time.Duration `yaml:"retry_base" split_words:"true" validate:"gt=0"`
	RetryMax       time.Duration `yaml:"retry_max" split_words:"true" validate:"gtefield=RetryBase"`
	PublishRetries int           `yaml:"publish_retries" split_words:"true" validate:"min=1"`
}

type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval" split_words:"true" validate:"gt=0"`
	LockTTL  time.Duration `yaml:"lock_ttl" split_words:"true" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" split_words:"true" validate:"oneof=json text"`
}

type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" split_words:"true" validate:"min=1"`
	AllowMethods []string      `yaml:"allow_methods" split_words:"true"`
	AllowHeaders []string      `yaml:"allow_headers" split_words:"true"`
	MaxAge       time.Duration `yaml:"max_age" split_words:"true"`
}

// Default returns the settings used for anything the file and the environment leave out.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Address: ":8080", Mode: "release", Docs: true, ShutdownTimeout: 10 * time.Second},
		GRPC: GRPCConfig{Address: ":9090"},
		Database: DatabaseConfig{
			Driver:      "postgres",
			Host:        "localhost",
			Port:        5432,
			User:        "reservations",
			Name:        "reservations",
			SSLMode:     "disable",
			AutoMigrate: true,
		},
		Redis: RedisConfig{SnapshotTTL: 5 * time.Second},
		Kafka: KafkaConfig{Topic: "reservation-events", GroupID: "reservations-notify"},
		Reservation: ReservationConfig{
			HoldTTL:        15 * time.Minute,
			MaxRetries:     5,
			RetryBase:      10 * time.Millisecond,
			RetryMax:       500 * time.Millisecond,
			PublishRetries: 3,
		},
		Reconciler: ReconcilerConfig{Interval: 30 * time.Second, LockTTL: 2 * time.Minute},
		Log:        LogConfig{Level: "info", Format: "json"},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		},
	}
}

// LoadConfig reads path on top of Default, applies RESERVATIONS_* overrides and
// validates the result. A missing file is fine; a malformed one is not.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrap(err, "failed to read config")
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
