// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"coinflip-settlement/pkg/db" // Import db package for its Config struct
)

// MinPayoutExpiry is the shortest time a broadcast payout may stay unseen
// before it is failed and re-sent. A signed transfer stays landable for as long
// as its blockhash is valid, about 60-90 seconds.
const MinPayoutExpiry = 90 * time.Second

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	Env        string
	ServerPort string
	DB         db.Config

	// Redis is optional; without it the deposit lock falls back to Postgres advisory locks.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka is optional; without brokers settlement events are dropped.
	KafkaBrokers       string
	TopicWagerSettled  string
	TopicPayoutUpdated string

	Ledger     LedgerConfig
	Settlement SettlementConfig
	Payout     PayoutConfig
}

// LedgerConfig describes the ledger network endpoint and the custodial keypair.
type LedgerConfig struct {
	RPCURL              string
	CustodialPrivateKey string // base58 encoded 64-byte ed25519 secret key
	RequestTimeout      time.Duration
}

// SettlementConfig tunes deposit verification and idempotency.
type SettlementConfig struct {
	FeePercent          decimal.Decimal
	DepositPollAttempts int
	DepositPollInterval time.Duration
	LockTTL             time.Duration
	ResultCacheTTL      time.Duration
}

// PayoutConfig tunes the out-of-band payout worker.
type PayoutConfig struct {
	WorkerInterval time.Duration
	MaxAttempts    int
	Expiry         time.Duration
	BatchSize      int
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present.
// It returns an AppConfig instance or an error if any required variable is missing or invalid.
func LoadConfig() (*AppConfig, error) {
	dbCfg, err := LoadDBConfig()
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	feePercent, err := decimal.NewFromString(getEnv("PLATFORM_FEE_PERCENT", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: must be within [0, 100)")
	}

	pollAttempts, err := getEnvInt("DEPOSIT_POLL_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDuration("DEPOSIT_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getEnvDuration("LOCK_TTL", 45*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvDuration("RESULT_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	rpcTimeout, err := getEnvDuration("SOLANA_RPC_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	workerInterval, err := getEnvDuration("PAYOUT_WORKER_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getEnvInt("PAYOUT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	expiry, err := getEnvDuration("PAYOUT_EXPIRY", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	batchSize, err := getEnvInt("PAYOUT_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	privateKey := os.Getenv("CUSTODIAL_PRIVATE_KEY")
	if privateKey == "" {
		return nil, fmt.Errorf("CUSTODIAL_PRIVATE_KEY is required")
	}

	cfg := &AppConfig{
		Env:                getEnv("ENV", "local"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DB:                 dbCfg,
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		TopicWagerSettled:  getEnv("KAFKA_TOPIC_WAGER_SETTLED", "wager.settled"),
		TopicPayoutUpdated: getEnv("KAFKA_TOPIC_PAYOUT_UPDATED", "payout.updated"),
		Ledger: LedgerConfig{
			RPCURL:              getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			CustodialPrivateKey: privateKey,
			RequestTimeout:      rpcTimeout,
		},
		Settlement: SettlementConfig{
			FeePercent:          feePercent,
			DepositPollAttempts: pollAttempts,
			DepositPollInterval: pollInterval,
			LockTTL:             lockTTL,
			ResultCacheTTL:      cacheTTL,
		},
		Payout: PayoutConfig{
			WorkerInterval: workerInterval,
			MaxAttempts:    maxAttempts,
			Expiry:         expiry,
			BatchSize:      batchSize,
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SettlementBudget is the longest a settlement can hold its deposit lock:
// every deposit poll plus the payout's prepare and send calls.
func (c *AppConfig) SettlementBudget() time.Duration {
	s := c.Settlement
	perPoll := s.DepositPollInterval + c.Ledger.RequestTimeout
	return time.Duration(s.DepositPollAttempts)*perPoll + 2*c.Ledger.RequestTimeout
}

func (c *AppConfig) validate() error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"DEPOSIT_POLL_INTERVAL", c.Settlement.DepositPollInterval},
		{"LOCK_TTL", c.Settlement.LockTTL},
		{"RESULT_CACHE_TTL", c.Settlement.ResultCacheTTL},
		{"SOLANA_RPC_TIMEOUT", c.Ledger.RequestTimeout},
		{"PAYOUT_WORKER_INTERVAL", c.Payout.WorkerInterval},
	}
	for _, v := range durations {
		if v.d <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %s", v.key, v.d)
		}
	}
	counts := []struct {
		key string
		n   int
	}{
		{"DEPOSIT_POLL_ATTEMPTS", c.Settlement.DepositPollAttempts},
		{"PAYOUT_MAX_ATTEMPTS", c.Payout.MaxAttempts},
		{"PAYOUT_BATCH_SIZE", c.Payout.BatchSize},
	}
	for _, v := range counts {
		if v.n <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %d", v.key, v.n)
		}
	}

	if c.Payout.Expiry < MinPayoutExpiry {
		return fmt.Errorf("invalid PAYOUT_EXPIRY: must be at least %s, got %s", MinPayoutExpiry, c.Payout.Expiry)
	}
	if budget := c.SettlementBudget(); c.Settlement.LockTTL <= budget {
		return fmt.Errorf("invalid LOCK_TTL: %s does not outlast a settlement of up to %s", c.Settlement.LockTTL, budget)
	}
	return nil
}

// LoadDBConfig loads only the database settings, for tooling such as migrations.
func LoadDBConfig() (db.Config, error) {
	_ = godotenv.Load() // .env is optional

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return db.Config{}, err
	}
	return db.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "user"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "coinflip"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}, nil
}

// getEnv returns the environment value for key or def when unset.
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
