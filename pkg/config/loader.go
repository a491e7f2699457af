package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/axiondb/axion/pkg/axionerrors"
)

// legacyAliases maps deprecated camelCase keys to their canonical names.
// A file supplying both the canonical key and its alias is rejected.
var legacyAliases = map[string]string{
	"waitTimeout":         "wait_timeout",
	"maxLifetimeSession":  "max_lifetime_session",
	"maxSessionsPerShard": "max_sessions_per_shard",
	"stmtCacheSize":       "stmtcachesize",
	"pingInterval":        "ping_interval",
	"sodaMetadataCache":   "soda_metadata_cache",
	"getMode":             "getmode",
}

// Load loads a pool configuration from a YAML file. Environment variables
// referenced as ${VAR_NAME} are substituted before parsing. Deprecated
// camelCase keys are honored unless the canonical key is also present.
func Load(filePath string, cfg *PoolConfig) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := resolveLegacyKeys(raw); err != nil {
		return err
	}

	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to normalize config: %w", err)
	}
	if err := yaml.Unmarshal(normalized, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Save saves a pool configuration to a YAML file.
func Save(filePath string, cfg *PoolConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// resolveLegacyKeys rewrites deprecated aliases to their canonical keys,
// failing when a parameter is supplied under both names.
func resolveLegacyKeys(raw map[string]interface{}) error {
	for alias, canonical := range legacyAliases {
		aliasValue, aliasSet := raw[alias]
		if !aliasSet {
			continue
		}
		if _, canonicalSet := raw[canonical]; canonicalSet {
			return axionerrors.Driverf(axionerrors.ErrDuplicateParameter,
				"%q and %q", canonical, alias)
		}
		raw[canonical] = aliasValue
		delete(raw, alias)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}

// Seconds is a convenience for building the duration-valued fields from
// whole-second counts as used by the original configuration surface.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
