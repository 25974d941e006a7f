// Package env reads raw process environment values for the few settings
// resolved outside the typed config, such as the logger output format.
package env

import (
	"os"
	"strings"
)

// Get returns the named variable's value, or fallback when it is unset or
// blank.
func Get(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
