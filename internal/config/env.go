package config

import (
	"fmt"
	"os"
	"strings"
)

// EnvFlagPrefix is prepended to every --env key before it is exported.
const EnvFlagPrefix = "ENV_"

// ExportEnvFlags parses comma-separated NAME=VALUE pairs and exports each as
// ENV_NAME so program entries can reference them as %(ENV_NAME)s.
func ExportEnvFlags(pairs string) error {
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid env flag %q, expected NAME=VALUE", pair)
		}
		if err := os.Setenv(EnvFlagPrefix+key, value); err != nil {
			return fmt.Errorf("failed to export %s: %w", key, err)
		}
	}
	return nil
}
