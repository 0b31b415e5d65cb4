// pkg/core/load.go
package core

import (
	"fmt"
	"os"
	"strings"

	manifest "github.com/joeydtaylor/steeze-vault/pkg/manifest"
	toml "github.com/pelletier/go-toml/v2"
)

// LoadConfig reads the TOML manifest at path, fills defaults, applies environment
// overrides, and validates the result. Any error here is fatal to the job.
func LoadConfig(path string) (manifest.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return manifest.Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig is LoadConfig without the file read.
func ParseConfig(b []byte) (manifest.Config, error) {
	var cfg manifest.Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return manifest.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return manifest.Config{}, err
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return manifest.Config{}, err
	}
	return cfg, nil
}

// applyEnv lets deploy-time values and secrets stay out of the manifest file.
func applyEnv(cfg *manifest.Config) error {
	if b := splitCSV(os.Getenv("KAFKA_BROKERS")); len(b) > 0 {
		cfg.Source.Brokers = b
	}
	if t := strings.TrimSpace(os.Getenv("KAFKA_TOPIC")); t != "" {
		cfg.Source.Topic = t
	}
	if t := strings.TrimSpace(os.Getenv("KAFKA_OUTPUT_TOPIC")); t != "" {
		cfg.Sink.Topic = t
	}
	if u, p := strings.TrimSpace(os.Getenv("KAFKA_SASL_USERNAME")), strings.TrimSpace(os.Getenv("KAFKA_SASL_PASSWORD")); u != "" || p != "" {
		mech := strings.ToUpper(envOr("KAFKA_SASL_MECHANISM", "SCRAM-SHA-512"))
		for _, sec := range []**manifest.KafkaSecurity{&cfg.Source.Security, &cfg.Sink.Security} {
			if *sec == nil {
				*sec = &manifest.KafkaSecurity{}
			}
			if (*sec).SASL == nil {
				(*sec).SASL = &manifest.KafkaSASL{Mechanism: mech}
			}
			if u != "" {
				(*sec).SASL.Username = u
			}
			if p != "" {
				(*sec).SASL.Password = p
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("VAULT_URL")); v != "" {
		cfg.Vault.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_ID")); v != "" {
		cfg.Vault.VaultID = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_TABLE")); v != "" {
		cfg.Vault.Table = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_CREDENTIALS")); v != "" {
		cfg.Vault.Credentials = v
	}

	if v := strings.TrimSpace(os.Getenv("INSERT_BATCH_SIZE")); v != "" {
		n, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("INSERT_BATCH_SIZE: %w", err)
		}
		cfg.Pipeline.BatchSize = n
	}
	if v := strings.TrimSpace(os.Getenv("AWAIT_TERMINATION_MS")); v != "" {
		n, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("AWAIT_TERMINATION_MS: %w", err)
		}
		cfg.Pipeline.AwaitTerminationMS = n
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_LISTEN_ADDRESS")); v != "" {
		cfg.Admin.Listen = v
	}
	return nil
}
