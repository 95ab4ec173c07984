// Package config provides typed environment readers shared by every loader.
//
// Readers never fail. A malformed value logs a warning and yields the
// default so that a typo in one variable cannot take the process down before
// validation has had a chance to report it properly.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString returns the value of key, or defaultValue when unset or empty.
//
//	addr := GetEnvString("GATEWAY_ADDR", ":8080")
func GetEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns key parsed as a base-10 integer.
//
//	shards := GetEnvInt("RATE_LIMIT_SHARDS", 64)
func GetEnvInt(key string, defaultValue int) int {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		warnInvalid(key, raw, strconv.Itoa(defaultValue), err)
		return defaultValue
	}
	return value
}

// GetEnvInt64 is GetEnvInt for 64-bit values such as byte limits.
func GetEnvInt64(key string, defaultValue int64) int64 {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		warnInvalid(key, raw, strconv.FormatInt(defaultValue, 10), err)
		return defaultValue
	}
	return value
}

// GetEnvFloat returns key parsed as a float64.
//
//	rps := GetEnvFloat("ROLE_LOOKUP_RPS", 50)
func GetEnvFloat(key string, defaultValue float64) float64 {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		warnInvalid(key, raw, strconv.FormatFloat(defaultValue, 'g', -1, 64), err)
		return defaultValue
	}
	return value
}

// GetEnvBool returns key parsed with strconv.ParseBool
// ("1", "t", "true", "0", "f", "false" in any case).
func GetEnvBool(key string, defaultValue bool) bool {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		warnInvalid(key, raw, strconv.FormatBool(defaultValue), err)
		return defaultValue
	}
	return value
}

// GetEnvDuration returns key parsed by time.ParseDuration ("30s", "1h30m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		warnInvalid(key, raw, defaultValue.String(), err)
		return defaultValue
	}
	return value
}

// GetEnvStringList splits key on commas, trimming whitespace and dropping
// empty items. An unset variable or one with no items yields defaultValue.
//
//	// RATE_LIMIT_TRUSTED_PROXIES="10.0.0.0/8, 172.16.0.0/12"
//	proxies := GetEnvStringList("RATE_LIMIT_TRUSTED_PROXIES", nil)
func GetEnvStringList(key string, defaultValue []string) []string {
	raw, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

func warnInvalid(key, value, fallback string, err error) {
	slog.Warn("invalid environment variable, using default",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("default", fallback),
		slog.String("error", err.Error()))
}
