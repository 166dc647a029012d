package config

import (
	"os"
	"strconv"
	"time"

	"github.com/agentauth/consent-pdp/logging"
)

var logger = logging.Log()

// Config provides all tuneables of the decision core. Everything is read
// from the environment, with logged fallbacks to the documented defaults.
type Config interface {
	TokenSecret() []byte
	TokenExpiry() time.Duration
	AuthCodeExpiry() time.Duration
	ConsentCacheTTL() time.Duration
	ConsentCacheCapacity() int
	ConsentStoreTimeout() time.Duration
	AuthQueueCapacity() int
	AuthFlushBatchSize() int
	AuthFlushInterval() time.Duration
}

type EnvConfig struct{}

func (EnvConfig) TokenSecret() []byte {
	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		logger.Warn("No token secret configured, a development default is used. Do NEVER run production with the default secret!")
		secret = "dev-secret-key-change-in-production"
	}
	return []byte(secret)
}

func (EnvConfig) TokenExpiry() time.Duration {
	return durationFromEnv("TOKEN_EXPIRY_SECONDS", 3600)
}

func (EnvConfig) AuthCodeExpiry() time.Duration {
	return durationFromEnv("AUTH_CODE_EXPIRY_SECONDS", 300)
}

func (EnvConfig) ConsentCacheTTL() time.Duration {
	return durationFromEnv("CONSENT_CACHE_TTL_SECONDS", 300)
}

func (EnvConfig) ConsentCacheCapacity() int {
	return intFromEnv("CONSENT_CACHE_CAPACITY", 10000)
}

func (EnvConfig) ConsentStoreTimeout() time.Duration {
	ms := intFromEnv("CONSENT_STORE_TIMEOUT_MS", 500)
	return time.Duration(ms) * time.Millisecond
}

func (EnvConfig) AuthQueueCapacity() int {
	return intFromEnv("AUTH_QUEUE_CAPACITY", 10000)
}

func (EnvConfig) AuthFlushBatchSize() int {
	return intFromEnv("AUTH_FLUSH_BATCH_SIZE", 100)
}

func (EnvConfig) AuthFlushInterval() time.Duration {
	return durationFromEnv("AUTH_FLUSH_INTERVAL_SECONDS", 1)
}

func intFromEnv(envVar string, defaultValue int) int {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(envValue)
	if err != nil {
		logger.Warnf("Invalid value %s configured for %s, will use the default %d. Err: %v", envValue, envVar, defaultValue, err)
		return defaultValue
	}
	return value
}

func durationFromEnv(envVar string, defaultSeconds int) time.Duration {
	return time.Duration(intFromEnv(envVar, defaultSeconds)) * time.Second
}
