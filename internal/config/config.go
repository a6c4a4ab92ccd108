package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/oxx-labs/oxx-backend/pkg/env"
)

type Config struct {
	devMode bool

	// HTTP server
	host        string
	port        string
	corsOrigins []string

	// Chain selection. chainID 0 means the registry fallback chain.
	chainID         uint64
	fallbackChainID uint64
	rpcURL          string
	registryFile    string

	// Operator account used for server-side writes
	operatorPrivateKey string

	confirmationTimeout      time.Duration
	confirmationPollInterval time.Duration

	// Trading
	defaultFeeTier  uint64
	deadlineMinutes int
	tradingPath     string

	followerThreshold int
	refreshSchedule   string

	// Storage backends
	journalBackend string
	journalDir     string
	projectStore   string
	redisURL       string

	// ScyllaDB Host and Port
	scyllaHost     string
	scyllaPort     string
	scyllaKeyspace string

	idempotencyTTL time.Duration
}

var cfg Config

var (
	journalBackends = map[string]bool{"memory": true, "file": true, "redis": true, "scylla": true}
	projectStores   = map[string]bool{"memory": true, "scylla": true}
	tradingPaths    = map[string]bool{"liquidity-manager": true, "swap-handler": true}
)

// Init loads .env when present and reads the process configuration from the environment.
func Init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return load()
}

func load() error {
	cfg = Config{
		devMode:                  env.GetEnvBool("DEV_MODE", false),
		host:                     env.GetEnvString("OXX_HOST", "0.0.0.0"),
		port:                     env.GetEnvString("OXX_PORT", "8080"),
		corsOrigins:              env.GetEnvStringSlice("OXX_CORS_ORIGINS", []string{"*"}),
		chainID:                  env.GetEnvUint64("OXX_CHAIN_ID", 0),
		fallbackChainID:          env.GetEnvUint64("OXX_FALLBACK_CHAIN_ID", 84532),
		rpcURL:                   env.GetEnvString("OXX_RPC_URL", ""),
		registryFile:             env.GetEnvString("OXX_REGISTRY_FILE", ""),
		operatorPrivateKey:       env.GetEnvString("OXX_OPERATOR_PRIVATE_KEY", ""),
		confirmationTimeout:      env.GetEnvDuration("OXX_CONFIRMATION_TIMEOUT", 2*time.Minute),
		confirmationPollInterval: env.GetEnvDuration("OXX_CONFIRMATION_POLL_INTERVAL", 2*time.Second),
		defaultFeeTier:           env.GetEnvUint64("OXX_DEFAULT_FEE_TIER", 3000),
		deadlineMinutes:          env.GetEnvInt("OXX_DEADLINE_MINUTES", 20),
		tradingPath:              env.GetEnvString("OXX_TRADING_PATH", "liquidity-manager"),
		followerThreshold:        env.GetEnvInt("OXX_FOLLOWER_THRESHOLD", 10000),
		refreshSchedule:          env.GetEnvString("OXX_REFRESH_SCHEDULE", "0 */5 * * * *"),
		journalBackend:           env.GetEnvString("OXX_JOURNAL_BACKEND", "memory"),
		journalDir:               env.GetEnvString("OXX_JOURNAL_DIR", "data/journal"),
		projectStore:             env.GetEnvString("OXX_PROJECT_STORE", "memory"),
		redisURL:                 env.GetEnvString("REDIS_URL", ""),
		scyllaHost:               env.GetEnvString("SCYLLA_HOST", "localhost"),
		scyllaPort:               env.GetEnvString("SCYLLA_PORT", "9042"),
		scyllaKeyspace:           env.GetEnvString("SCYLLA_KEYSPACE", "oxx"),
		idempotencyTTL:           env.GetEnvDuration("OXX_IDEMPOTENCY_TTL", 10*time.Minute),
	}
	if err := validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

func validateConfig() error {
	if !env.IsValidPort(cfg.port) {
		return fmt.Errorf("invalid OXX port: %s", cfg.port)
	}
	if cfg.fallbackChainID == 0 {
		return fmt.Errorf("invalid fallback chain id: %d", cfg.fallbackChainID)
	}
	if !env.IsEmpty(cfg.rpcURL) && !env.IsValidRPCURL(cfg.rpcURL) {
		return fmt.Errorf("invalid RPC URL: %s", cfg.rpcURL)
	}
	if !env.IsEmpty(cfg.operatorPrivateKey) && !env.IsValidPrivateKey(cfg.operatorPrivateKey) {
		return fmt.Errorf("invalid operator private key")
	}
	if cfg.confirmationTimeout <= 0 {
		return fmt.Errorf("invalid confirmation timeout: %s", cfg.confirmationTimeout)
	}
	if cfg.confirmationPollInterval <= 0 || cfg.confirmationPollInterval >= cfg.confirmationTimeout {
		return fmt.Errorf("invalid confirmation poll interval: %s", cfg.confirmationPollInterval)
	}
	if cfg.defaultFeeTier == 0 || cfg.defaultFeeTier >= 1<<24 {
		return fmt.Errorf("invalid default fee tier: %d", cfg.defaultFeeTier)
	}
	if cfg.deadlineMinutes <= 0 {
		return fmt.Errorf("invalid deadline minutes: %d", cfg.deadlineMinutes)
	}
	if !tradingPaths[cfg.tradingPath] {
		return fmt.Errorf("invalid trading path: %s", cfg.tradingPath)
	}
	if cfg.followerThreshold < 0 {
		return fmt.Errorf("invalid follower threshold: %d", cfg.followerThreshold)
	}
	if env.IsEmpty(cfg.refreshSchedule) {
		return fmt.Errorf("invalid refresh schedule: %q", cfg.refreshSchedule)
	}
	if !journalBackends[cfg.journalBackend] {
		return fmt.Errorf("invalid journal backend: %s", cfg.journalBackend)
	}
	if cfg.journalBackend == "file" && env.IsEmpty(cfg.journalDir) {
		return fmt.Errorf("journal directory is required for the file journal")
	}
	if cfg.journalBackend == "redis" && env.IsEmpty(cfg.redisURL) {
		return fmt.Errorf("REDIS_URL is required for the redis journal")
	}
	if !projectStores[cfg.projectStore] {
		return fmt.Errorf("invalid project store: %s", cfg.projectStore)
	}
	if cfg.journalBackend == "scylla" || cfg.projectStore == "scylla" {
		if env.IsEmpty(cfg.scyllaHost) {
			return fmt.Errorf("invalid scylla host: %s", cfg.scyllaHost)
		}
		if !env.IsValidPort(cfg.scyllaPort) {
			return fmt.Errorf("invalid scylla port: %s", cfg.scyllaPort)
		}
	}
	if cfg.idempotencyTTL <= 0 {
		return fmt.Errorf("invalid idempotency TTL: %s", cfg.idempotencyTTL)
	}
	return nil
}

func IsDevMode() bool {
	return cfg.devMode
}

func GetHost() string {
	return cfg.host
}

func GetPort() string {
	return cfg.port
}

func GetCORSOrigins() []string {
	return cfg.corsOrigins
}

// GetChainID returns the configured chain, or the fallback chain when none is set.
func GetChainID() uint64 {
	if cfg.chainID == 0 {
		return cfg.fallbackChainID
	}
	return cfg.chainID
}

func GetFallbackChainID() uint64 {
	return cfg.fallbackChainID
}

func GetRPCURL() string {
	return cfg.rpcURL
}

func GetRegistryFile() string {
	return cfg.registryFile
}

func GetOperatorPrivateKey() string {
	return cfg.operatorPrivateKey
}

func GetConfirmationTimeout() time.Duration {
	return cfg.confirmationTimeout
}

func GetConfirmationPollInterval() time.Duration {
	return cfg.confirmationPollInterval
}

func GetDefaultFeeTier() uint32 {
	return uint32(cfg.defaultFeeTier)
}

func GetDeadlineMinutes() int {
	return cfg.deadlineMinutes
}

func GetTradingPath() string {
	return cfg.tradingPath
}

func GetFollowerThreshold() int64 {
	return int64(cfg.followerThreshold)
}

func GetRefreshSchedule() string {
	return cfg.refreshSchedule
}

func GetJournalBackend() string {
	return cfg.journalBackend
}

func GetJournalDir() string {
	return cfg.journalDir
}

func GetProjectStore() string {
	return cfg.projectStore
}

func GetRedisURL() string {
	return cfg.redisURL
}

func GetScyllaHost() string {
	return cfg.scyllaHost
}

func GetScyllaPort() string {
	return cfg.scyllaPort
}

func GetScyllaKeyspace() string {
	return cfg.scyllaKeyspace
}

func GetIdempotencyTTL() time.Duration {
	return cfg.idempotencyTTL
}
