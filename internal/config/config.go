package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Ledger drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverRaft     = "raft"
)

// Config holds service configuration.
type Config struct {
	ServerAddr    string `env:"SERVER_ADDR"    envDefault:"0.0.0.0:8080"`
	LedgerDriver  string `env:"LEDGER_DRIVER"  envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"internal/migrations"`
	SQLitePath    string `env:"SQLITE_PATH"    envDefault:"data/escrow.db"`

	Postgres PostgresConfig

	AuthTokenSecret     string `env:"AUTH_TOKEN_SECRET"`
	PaymentSignalSecret string `env:"PAYMENT_SIGNAL_SECRET"`
	IncidentSigningKey  string `env:"INCIDENT_SIGNING_KEY"`

	FeeRate       string `env:"PLATFORM_FEE_RATE"       envDefault:"0.05"`
	FeeMinimum    int64  `env:"PLATFORM_FEE_MIN"        envDefault:"0"`
	FeeExpression string `env:"PLATFORM_FEE_EXPRESSION"`

	ReleaseCooldown    time.Duration `env:"ESCROW_RELEASE_COOLDOWN" envDefault:"72h"`
	ReleaseSweep       time.Duration `env:"RELEASE_SWEEP_INTERVAL"  envDefault:"1m"`
	MaxConflictRetries int           `env:"MAX_CONFLICT_RETRIES"    envDefault:"3"`

	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL"     envDefault:"1s"`
	OutboxBatchSize   int           `env:"OUTBOX_BATCH_SIZE"   envDefault:"100"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   envDefault:"escrow.change-events"`
	RedisURL     string   `env:"REDIS_URL"`
	RedisChannel string   `env:"REDIS_CHANNEL" envDefault:"escrow:change-events"`

	TemporalAddress   string `env:"TEMPORAL_ADDRESS"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE"  envDefault:"default"`
	TemporalTaskQueue string `env:"TEMPORAL_TASK_QUEUE" envDefault:"escrow-release"`

	Raft RaftConfig

	OTelEndpoint    string `env:"OTEL_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"escrow-hub"`
}

// PostgresConfig builds a DSN when DATABASE_URL is absent.
type PostgresConfig struct {
	User     string `env:"POSTGRES_USER"     envDefault:"escrow_hub"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"escrow_hub_pass"`
	DB       string `env:"POSTGRES_DB"       envDefault:"escrow_hub"`
	Host     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	SSLMode  string `env:"DATABASE_SSLMODE"  envDefault:"disable"`
}

// RaftConfig configures the replicated ledger driver.
type RaftConfig struct {
	NodeID    string `env:"RAFT_NODE_ID"`
	Addr      string `env:"RAFT_ADDR"      envDefault:"127.0.0.1:7000"`
	DataDir   string `env:"RAFT_DATA_DIR"  envDefault:"data/raft"`
	Bootstrap bool   `env:"RAFT_BOOTSTRAP" envDefault:"false"`
	// JoinURL is the base URL of any voting member's HTTP API.
	JoinURL        string        `env:"RAFT_JOIN_URL"`
	JoinAttempts   int           `env:"RAFT_JOIN_ATTEMPTS"    envDefault:"10"`
	JoinRetryDelay time.Duration `env:"RAFT_JOIN_RETRY_DELAY" envDefault:"1s"`
	StartupWait    time.Duration `env:"RAFT_STARTUP_WAIT"     envDefault:"4s"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.PathEscape(p.User), url.PathEscape(p.Password), p.Host, p.Port, p.DB, p.SSLMode)
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LedgerDriver = strings.ToLower(strings.TrimSpace(cfg.LedgerDriver))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.Postgres.DSN()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LedgerDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	case DriverRaft:
		if strings.TrimSpace(c.Raft.NodeID) == "" {
			return errors.New("RAFT_NODE_ID is required for the raft ledger driver")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}
	if c.AuthTokenSecret == "" || c.PaymentSignalSecret == "" {
		return errors.New("AUTH_TOKEN_SECRET and PAYMENT_SIGNAL_SECRET are required")
	}
	if c.MaxConflictRetries < 0 {
		return errors.New("MAX_CONFLICT_RETRIES must not be negative")
	}
	if c.ReleaseCooldown <= 0 {
		return errors.New("ESCROW_RELEASE_COOLDOWN must be positive")
	}
	if _, err := c.IncidentKey(); err != nil {
		return err
	}
	return nil
}

// IncidentKey decodes INCIDENT_SIGNING_KEY. An unset key disables signing.
func (c *Config) IncidentKey() ([]byte, error) {
	if c.IncidentSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.IncidentSigningKey)
	if err != nil {
		return nil, fmt.Errorf("INCIDENT_SIGNING_KEY must be hex encoded: %w", err)
	}
	return key, nil
}
