// Package config builds the server configuration from environment variables
// so main stays lean. Defaults target local development; production overrides
// everything via the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "commonsource/pkg/platform/strings"
)

// Server captures the full certifier configuration.
type Server struct {
	Addr string

	// IssuerPrivateKeyHex is the certifier wallet root key. The key never
	// signs anything directly; all operations go through protocol-scoped
	// derivations inside the wallet.
	IssuerPrivateKeyHex string

	// WalletNetwork selects the chain ("main" or "test"); WalletDBPath is the
	// sqlite file backing the wallet's storage provider.
	WalletNetwork string
	WalletDBPath  string

	// CertificateTypeB64 is the base64 type identifier stamped on issued
	// identity certificates; DIDTypeB64 identifies DID-bearing certificates.
	CertificateTypeB64 string
	DIDTypeB64         string

	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// AdminJWTSecret signs short-lived tokens for the revocation surface;
	// AdminJWTIssuer is the expected iss claim.
	AdminJWTSecret string
	AdminJWTIssuer string

	// AuditBuffer sizes the audit recorder's inbox.
	AuditBuffer int

	// NonceTTL bounds how long an accepted client nonce is remembered by the
	// replay guard.
	NonceTTL time.Duration

	// WalletRetry bounds retries against the wallet for transient failures.
	WalletRetry RetryConfig
}

// RedisConfig configures the optional replay-guard backing store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit event stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RetryConfig bounds retry behavior for transient wallet failures.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:                envOr("COMMONSOURCE_ADDR", ":8080"),
		IssuerPrivateKeyHex: os.Getenv("COMMONSOURCE_ISSUER_KEY"),
		WalletNetwork:       envOr("COMMONSOURCE_WALLET_NETWORK", "main"),
		WalletDBPath:        envOr("COMMONSOURCE_WALLET_DB", "data/wallet.sqlite"),
		CertificateTypeB64:  envOr("COMMONSOURCE_CERT_TYPE", "QnZj"),
		DIDTypeB64:          envOr("COMMONSOURCE_DID_CERT_TYPE", "ZGlk"),
		PostgresDSN:         os.Getenv("COMMONSOURCE_POSTGRES_DSN"),
		AdminJWTSecret:      envOr("COMMONSOURCE_ADMIN_JWT_SECRET", "dev-secret-change-in-production"),
		AdminJWTIssuer:      envOr("COMMONSOURCE_ADMIN_JWT_ISSUER", "commonsource"),
		AuditBuffer:         envIntOr("COMMONSOURCE_AUDIT_BUFFER", 64),
		NonceTTL:            envDurationOr("COMMONSOURCE_NONCE_TTL", 24*time.Hour),
		Redis: RedisConfig{
			URL:          os.Getenv("COMMONSOURCE_REDIS_URL"),
			PoolSize:     envIntOr("COMMONSOURCE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("COMMONSOURCE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("COMMONSOURCE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("COMMONSOURCE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("COMMONSOURCE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("COMMONSOURCE_AUDIT_TOPIC", "commonsource.audit"),
		},
		WalletRetry: RetryConfig{
			MaxAttempts: envIntOr("COMMONSOURCE_WALLET_RETRY_ATTEMPTS", 3),
			Backoff:     envDurationOr("COMMONSOURCE_WALLET_RETRY_BACKOFF", 250*time.Millisecond),
		},
	}
	if brokers := os.Getenv("COMMONSOURCE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = platformstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
