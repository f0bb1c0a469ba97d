package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
)

const masked = "***"

// Role selects which worker a process runs. It also provides the default service name and
// consumer group.
type Role string

const (
	RoleScanner        Role = "command-timeout-scanner"
	RoleNotifier       Role = "command-event-notifier"
	RoleDlqRecorder    Role = "telemetry-dlq-recorder"
	RoleEventsRecorder Role = "command-events-recorder"
)

func (r Role) Valid() bool {
	switch r {
	case RoleScanner, RoleNotifier, RoleDlqRecorder, RoleEventsRecorder:
		return true
	default:
		return false
	}
}

// Consumes reports whether the role runs a consumer group.
func (r Role) Consumes() bool {
	return r != RoleScanner
}

type Config struct {
	Role     Role `yaml:"-"`
	App      `yaml:"app"`
	Logger   `yaml:"log"`
	Database `yaml:"database"`
	Redis    `yaml:"redis"`
	Kafka    `yaml:"kafka"`
	Scanner  `yaml:"scanner"`
	Outbox   `yaml:"outbox"`
	Notifier `yaml:"notifier"`
	Contract `yaml:"contract"`
	Ops      `yaml:"ops"`
}

type App struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION" env-default:"dev"`
}

type Logger struct {
	Level      string   `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	FormatJSON bool     `yaml:"format_json" env:"LOG_FORMAT_JSON" env-default:"true"`
	Rotation   Rotation `yaml:"rotation"`
}

type Rotation struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"7"`
}

type Database struct {
	URL       string    `yaml:"url" env:"POSTGRES_URL"`
	Host      string    `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port      uint16    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User      string    `yaml:"user" env:"POSTGRES_USER" env-default:"landslide"`
	Password  string    `yaml:"password" env:"POSTGRES_PASSWORD"`
	Name      string    `yaml:"name" env:"POSTGRES_DATABASE" env-default:"landslide_monitor"`
	SSLMode   string    `yaml:"ssl_mode" env:"POSTGRES_SSL_MODE" env-default:"disable"`
	MaxConns  int32     `yaml:"max_conns" env:"POSTGRES_POOL_MAX" env-default:"5" validate:"min=1,max=50"`
	MinConns  int32     `yaml:"min_conns" env:"POSTGRES_POOL_MIN" env-default:"0" validate:"min=0,ltefield=MaxConns"`
	Migration Migration `yaml:"migration"`
}

type Migration struct {
	Path      string `yaml:"path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	AutoApply bool   `yaml:"auto_apply" env:"MIGRATIONS_AUTO_APPLY" env-default:"false"`
}

// Redis is only used by the scanner, for the single-active-instance lease.
type Redis struct {
	Enable   bool          `yaml:"enable" env:"REDIS_ENABLE" env-default:"false"`
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     uint16        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0" validate:"min=0"`
	LeaseKey string        `yaml:"lease_key" env:"SCAN_LEASE_KEY" env-default:"command-timeout-scanner:lease"`
	LeaseTTL time.Duration `yaml:"lease_ttl" env:"SCAN_LEASE_TTL" env-default:"15s"`
}

type Kafka struct {
	Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," validate:"required,min=1,dive,required"`
	ClientID string   `yaml:"client_id" env:"KAFKA_CLIENT_ID"`
	GroupID  string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
	Topics   Topics   `yaml:"topics"`
	Consumer Consumer `yaml:"consumer"`
	Producer Producer `yaml:"producer"`
}

type Topics struct {
	DeviceCommandEvents string `yaml:"device_command_events" env:"KAFKA_TOPIC_DEVICE_COMMAND_EVENTS" env-default:"device.command_events.v1" validate:"required"`
	TelemetryDlq        string `yaml:"telemetry_dlq" env:"KAFKA_TOPIC_TELEMETRY_DLQ" env-default:"telemetry.dlq.v1" validate:"required"`
}

type Consumer struct {
	Strategy          string        `yaml:"strategy" env:"KAFKA_CONSUMER_STRATEGY" env-default:"range" validate:"oneof=range roundrobin sticky"`
	BatchSize         int           `yaml:"batch_size" env:"KAFKA_CONSUMER_BATCH_SIZE" env-default:"100" validate:"min=1,max=10000"`
	BatchWait         time.Duration `yaml:"batch_wait" env:"KAFKA_CONSUMER_BATCH_WAIT" env-default:"500ms"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" env:"KAFKA_CONSUMER_RETRY_BACKOFF" env-default:"5s"`
	SessionTimeout    time.Duration `yaml:"session_timeout" env:"KAFKA_CONSUMER_SESSION_TIMEOUT" env-default:"30s"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"KAFKA_CONSUMER_HEARTBEAT_INTERVAL" env-default:"3s"`
}

type Producer struct {
	RequiredAcks string `yaml:"required_acks" env:"KAFKA_PRODUCER_REQUIRED_ACKS" env-default:"all" validate:"oneof=none local all"`
	Idempotent   bool   `yaml:"idempotent" env:"KAFKA_PRODUCER_IDEMPOTENT" env-default:"true"`
}

type Scanner struct {
	AckTimeoutSeconds int           `yaml:"ack_timeout_seconds" env:"COMMAND_ACK_TIMEOUT_SECONDS" env-default:"30" validate:"min=1"`
	Interval          time.Duration `yaml:"interval" env:"SCAN_INTERVAL" env-default:"5s"`
	Limit             int           `yaml:"limit" env:"SCAN_LIMIT" env-default:"200" validate:"min=1,max=10000"`
}

type Outbox struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL" env-default:"2s"`
	BatchSize    int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"100" validate:"min=1,max=10000"`
}

type Notifier struct {
	NotifyType string `yaml:"notify_type" env:"NOTIFY_TYPE" env-default:"app" validate:"required,max=20"`
}

type Contract struct {
	SchemaDir string `yaml:"schema_dir" env:"SCHEMA_DIR" env-default:"schemas" validate:"required"`
}

type Ops struct {
	Enabled bool   `yaml:"enabled" env:"OPS_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port    uint16 `yaml:"port" env:"OPS_PORT" env-default:"9100"`
}

func MustLoadConfig(role Role) *Config {
	cfg, err := LoadConfig(role)
	if err != nil {
		panic(err)
	}

	return cfg
}

func LoadConfig(role Role) (*Config, error) {
	return Load(role, fetchConfigPath())
}

// Load reads path when it is set and the environment otherwise. Environment variables override
// file values either way.
func Load(role Role, path string) (*Config, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownRole, role)
	}

	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}

		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	cfg.Role = role
	cfg.applyRoleDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyRoleDefaults() {
	if c.App.ServiceName == "" {
		c.App.ServiceName = string(c.Role)
	}

	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = c.App.ServiceName
	}

	if c.Kafka.GroupID == "" && c.Role.Consumes() {
		c.Kafka.GroupID = c.App.ServiceName + ".v1"
	}
}

// Validate runs the struct tag rules, then the checks that depend on the role. A process without
// store settings is rejected here, before any broker connection is attempted.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Password == "" {
		return apperrors.ErrStoreNotConfigured
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Scanner.Interval <= 0 {
		return errors.New("invalid config: scanner interval must be positive")
	}

	if c.Role.Consumes() && c.Kafka.GroupID == "" {
		return errors.New("invalid config: kafka group id is required")
	}

	return nil
}

// Topic is the topic the role consumes from, or publishes to for the scanner.
func (c *Config) Topic() string {
	if c.Role == RoleDlqRecorder {
		return c.Kafka.Topics.TelemetryDlq
	}

	return c.Kafka.Topics.DeviceCommandEvents
}

func MustPrintConfig(cfg *Config) {
	if err := PrintConfig(cfg); err != nil {
		panic(err)
	}
}

func PrintConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return err
	}

	println(string(data))

	return nil
}

// Masked returns a copy that is safe to print.
func (c *Config) Masked() Config {
	out := *c

	if out.Database.Password != "" {
		out.Database.Password = masked
	}

	if out.Redis.Password != "" {
		out.Redis.Password = masked
	}

	if out.Database.URL != "" {
		out.Database.URL = maskURL(out.Database.URL)
	}

	return out
}

func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return masked
	}

	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), masked)
	}

	return u.String()
}

func fetchConfigPath() string {
	var result string

	flag.StringVar(&result, "config", "", "Path to config file")
	flag.Parse()

	if result == "" {
		result = os.Getenv("CONFIG_PATH")
	}

	return result
}
