package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the trimmed value of key, treating blank as unset.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// GetEnvOrDefault returns the variable's value or defaultValue when unset or blank.
func GetEnvOrDefault(key, defaultValue string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// ParseIntEnv parses an integer variable. Unparsable values fall back to the default.
func ParseIntEnv(key string, defaultValue int) int {
	if v, ok := lookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// ParseInt64Env is ParseIntEnv for int64 values such as byte limits.
func ParseInt64Env(key string, defaultValue int64) int64 {
	if v, ok := lookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

// ParseFloat64Env parses a float variable such as a requests-per-second rate.
func ParseFloat64Env(key string, defaultValue float64) float64 {
	if v, ok := lookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// ParseBoolEnv accepts true/false, 1/0, yes/no and on/off.
func ParseBoolEnv(key string, defaultValue bool) bool {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ParseDurationEnv reads either a Go duration ("90s", "2m") or a bare
// number of seconds.
func ParseDurationEnv(key string, defaultSeconds int) time.Duration {
	v, ok := lookupEnv(key)
	if !ok {
		return time.Duration(defaultSeconds) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return time.Duration(defaultSeconds) * time.Second
}
