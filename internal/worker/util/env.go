// Package util holds the env helpers the worker main reads its
// configuration with.
package util

import (
	"os"
	"strings"
)

// Env returns the trimmed value of k, or def when unset or blank.
func Env(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// MustEnv panics on a missing value; worker startup should fail fast on an
// incomplete environment rather than consume batches it cannot store.
func MustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
