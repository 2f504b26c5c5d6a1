package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"idoracle/pkg/domain"
)

// EnvPrefix namespaces every variable read by FromEnv.
const EnvPrefix = "IDORACLE_"

// Config is the full node configuration.
type Config struct {
	Server  Server
	Chain   Chain       `envPrefix:"CHAIN_"`
	Worker  Worker      `envPrefix:"WORKER_"`
	Storage Storage     `envPrefix:"STORAGE_"`
	Redis   RedisConfig `envPrefix:"REDIS_"`
	Kafka   KafkaConfig `envPrefix:"KAFKA_"`
	Log     Log         `envPrefix:"LOG_"`
	Audit   Audit       `envPrefix:"AUDIT_"`
	Limits  RateLimit   `envPrefix:"RATELIMIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY,required,notEmpty"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"idoracle"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"idoracle-api"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Chain configures the development ledger and its transaction pool.
type Chain struct {
	BlockInterval time.Duration `env:"BLOCK_INTERVAL" envDefault:"6s"`
	PoolCapacity  int           `env:"POOL_CAPACITY" envDefault:"1024"`
	// NodeID names this node in gossip; defaults to the hostname.
	NodeID string `env:"NODE_ID"`
}

// Worker configures the per-node verification worker and its fetcher.
type Worker struct {
	Concurrency      int           `env:"CONCURRENCY" envDefault:"4"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	GitHubBaseURL    string        `env:"GITHUB_BASE_URL" envDefault:"https://api.github.com"`
	GitHubToken      string        `env:"GITHUB_TOKEN"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
}

// Storage selects where the request registry and identity bindings live.
type Storage struct {
	Backend     string `env:"BACKEND" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// RedisConfig configures the optional fetch cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures gossip of admitted responses between nodes. No
// brokers disables gossip.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"idoracle.responses"`
	GroupID string   `env:"GROUP_ID" envDefault:"idoracle-node"`
	// Partitions and ReplicationFactor apply only when the topic is created.
	Partitions        int32 `env:"PARTITIONS" envDefault:"1"`
	ReplicationFactor int16 `env:"REPLICATION_FACTOR" envDefault:"1"`
}

// Audit configures the audit trail. Regulated mode persists events
// synchronously so a request never completes ahead of its audit record.
type Audit struct {
	Regulated   bool `env:"REGULATED" envDefault:"false"`
	AsyncBuffer int  `env:"ASYNC_BUFFER" envDefault:"256"`
	// Operators are the account ids, hex encoded, that may read every
	// account's audit trail.
	Operators []string `env:"OPERATORS" envSeparator:","`
}

// OperatorAccounts parses Operators.
func (a Audit) OperatorAccounts() ([]domain.AccountID, error) {
	accounts := make([]domain.AccountID, 0, len(a.Operators))
	for _, raw := range a.Operators {
		account, err := domain.ParseAccountID(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("audit operator %q: %w", raw, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// RateLimit caps verification requests per account. Zero requests disables
// the limit.
type RateLimit struct {
	Requests int           `env:"REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// FromEnv builds a Config from IDORACLE_* environment variables so main
// stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the node cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage backend %q requires %sSTORAGE_DATABASE_URL", StoragePostgres, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Chain.BlockInterval <= 0 {
		return fmt.Errorf("block interval must be positive")
	}
	if c.Chain.PoolCapacity <= 0 {
		return fmt.Errorf("pool capacity must be positive")
	}
	if c.Server.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive")
	}
	if _, err := c.Audit.OperatorAccounts(); err != nil {
		return err
	}
	return nil
}

// GossipEnabled reports whether admitted responses are exchanged over Kafka.
func (c Config) GossipEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
