// Package util holds small helpers shared across packages.
package util

import (
	"os"
	"strconv"
)

// ParseBoolEnv reads a boolean environment variable, returning def when the
// variable is unset or unparseable.
func ParseBoolEnv(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// GetEnv reads an environment variable with a default.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
