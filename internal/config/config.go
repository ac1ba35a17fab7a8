package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// Init loads the service configuration from the environment.
func Init() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}

	if ServiceVersion != "" {
		cfg.AppConfig.ServiceVersion = ServiceVersion
	}
	if CommitSHA != "" {
		cfg.AppConfig.CommitSHA = CommitSHA
	}

	return cfg, nil
}

// Dump outputs the current configuration to stdout as JSON. Secrets are
// elided through their omitempty-tagged zero values only when unset; this is
// an operator aid, not a redaction layer.
func (c *ServiceConfig) Dump() {
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stdout, "Error marshaling config: %v\n", err)

		return
	}

	fmt.Fprintf(os.Stdout, "\n=== Configuration Dump ===\n%s\n=== End Configuration ===\n\n", string(configJSON))
}
