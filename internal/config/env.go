package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// parsed returns parse(raw), or fallback when raw is empty or does not parse.
func parsed[T any](raw string, fallback T, parse func(string) (T, error)) T {
	if raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	return parsed(os.Getenv(key), defaultValue, parseString)
}

// GetIntEnv returns an integer environment variable or a default.
// Values that are not integers are ignored.
func GetIntEnv(key string, defaultValue int) int {
	return parsed(os.Getenv(key), defaultValue, strconv.Atoi)
}

// GetDurationEnv returns a duration environment variable or a default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	return parsed(os.Getenv(key), defaultValue, time.ParseDuration)
}

// GetBoolEnv returns a boolean environment variable (strconv.ParseBool syntax) or a default.
func GetBoolEnv(key string, defaultValue bool) bool {
	return parsed(os.Getenv(key), defaultValue, strconv.ParseBool)
}

// GetSecretFile reads a secret from a mounted file, trimming surrounding
// whitespace. An empty path or an unreadable file yields "".
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
