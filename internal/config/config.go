package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	EvidenceTopic string

	// Challenge lifecycle
	ChallengeExpiry time.Duration

	// Settlement
	ConfirmationBlocks int64
	FormatOnlyFallback bool
	LedgerRPCURLs      map[string]string
	FacilitatorURL     string

	// Retry policy for outbound calls
	RetryAttempts     int
	BackoffBase       time.Duration
	ProviderTimeout   time.Duration
	ReputationTimeout time.Duration

	// Reputation gate
	FailOpen                bool
	MinReputationScore      float64
	MinPaymentCount         int
	MinTotalValue           float64
	RequireVerifiedIdentity bool
	BlockSybil              bool
	MinRecipientTrust       string

	// Billing
	MaxCallsPerSession int
	BillingInterval    time.Duration
	MinBillingAmount   string
	SessionExpiry      time.Duration

	JaegerEndpoint string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8084"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		NatsURL:      os.Getenv("NATS_URL"),

		EvidenceTopic: getEnv("EVIDENCE_TOPIC", "payment.evidence"),

		ChallengeExpiry: getDuration("CHALLENGE_EXPIRY_MINUTES", 15) * time.Minute,

		ConfirmationBlocks: int64(getInt("CONFIRMATION_BLOCKS", 3)),
		FormatOnlyFallback: getBool("FORMAT_ONLY_FALLBACK", false),
		LedgerRPCURLs: map[string]string{
			"ethereum": os.Getenv("LEDGER_RPC_ETHEREUM"),
			"base":     os.Getenv("LEDGER_RPC_BASE"),
			"polygon":  os.Getenv("LEDGER_RPC_POLYGON"),
		},
		FacilitatorURL: os.Getenv("FACILITATOR_URL"),

		RetryAttempts:     getInt("RETRY_ATTEMPTS", 3),
		BackoffBase:       time.Duration(getInt("BACKOFF_BASE_MS", 200)) * time.Millisecond,
		ProviderTimeout:   time.Duration(getInt("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
		ReputationTimeout: time.Duration(getInt("REPUTATION_TIMEOUT_SECONDS", 5)) * time.Second,

		FailOpen:                getBool("FAIL_OPEN", true),
		MinReputationScore:      getFloat("MIN_REPUTATION_SCORE", 0),
		MinPaymentCount:         getInt("MIN_PAYMENT_COUNT", 0),
		MinTotalValue:           getFloat("MIN_TOTAL_VALUE", 0),
		RequireVerifiedIdentity: getBool("REQUIRE_VERIFIED_IDENTITY", false),
		BlockSybil:              getBool("BLOCK_SYBIL", true),
		MinRecipientTrust:       os.Getenv("MIN_RECIPIENT_TRUST"),

		MaxCallsPerSession: getInt("MAX_CALLS_PER_SESSION", 1000),
		BillingInterval:    time.Duration(getInt("BILLING_INTERVAL_SECONDS", 3600)) * time.Second,
		MinBillingAmount:   getEnv("MIN_BILLING_AMOUNT", "0.01"),
		SessionExpiry:      time.Duration(getInt("SESSION_EXPIRY_HOURS", 24)) * time.Hour,

		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback))
}
