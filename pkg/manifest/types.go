package manifest

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	DefaultBatchSize       = 100
	DefaultIdentifierField = "skyflowID"
)

// MessageFormat selects how upstream message bytes become records.
type MessageFormat string

const (
	FormatBytes MessageFormat = "bytes"
	FormatJSON  MessageFormat = "json"
)

// Pipeline tunes micro-batch formation and vault batching.
type Pipeline struct {
	BatchSize            int    `toml:"batch_size"`              // records per vault insert; default 100
	TriggerIntervalMS    int    `toml:"trigger_interval_ms"`     // micro-batch trigger; default 1000
	MaxRecordsPerTrigger int    `toml:"max_records_per_trigger"` // default 10000
	AwaitTerminationMS   int    `toml:"await_termination_ms"`    // default 30000
	IdentifierField      string `toml:"identifier_field"`        // output key name; default "skyflowID"
}

func (p Pipeline) TriggerInterval() time.Duration {
	return time.Duration(p.TriggerIntervalMS) * time.Millisecond
}

func (p Pipeline) AwaitTermination() time.Duration {
	return time.Duration(p.AwaitTerminationMS) * time.Millisecond
}

func (p Pipeline) validate() error {
	if p.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be >= 1 (got %d)", p.BatchSize)
	}
	if p.TriggerIntervalMS < 0 || p.AwaitTerminationMS < 0 {
		return errors.New("pipeline: durations must be >= 0")
	}
	if p.MaxRecordsPerTrigger < 1 {
		return errors.New("pipeline.max_records_per_trigger must be >= 1")
	}
	if strings.TrimSpace(p.IdentifierField) == "" {
		return errors.New("pipeline.identifier_field required")
	}
	return nil
}

// Vault describes the insert endpoint and the service account used against it.
type Vault struct {
	URL                string  `toml:"url"`
	VaultID            string  `toml:"vault_id"`
	Table              string  `toml:"table"`
	Credentials        string  `toml:"credentials"` // path | env:NAME | s3://bucket/key
	TimeoutMS          int     `toml:"timeout_ms"`
	MaxInFlight        int     `toml:"max_in_flight"`
	TokenLeewaySeconds int     `toml:"token_leeway_seconds"`
	Upsert             *Upsert `toml:"upsert"`
}

type Upsert struct {
	UpdateType    string   `toml:"update_type"` // "UPDATE" | "REPLACE"
	UniqueColumns []string `toml:"unique_columns"`
}

func (v Vault) Timeout() time.Duration { return time.Duration(v.TimeoutMS) * time.Millisecond }

func (v Vault) TokenLeeway() time.Duration {
	return time.Duration(v.TokenLeewaySeconds) * time.Second
}

func (v Vault) validate() error {
	if strings.TrimSpace(v.URL) == "" || strings.TrimSpace(v.VaultID) == "" || strings.TrimSpace(v.Table) == "" {
		return errors.New("vault: url, vault_id, and table are required")
	}
	if err := CheckVaultURL(v.URL); err != nil {
		return err
	}
	if strings.TrimSpace(v.Credentials) == "" {
		return errors.New("vault.credentials required")
	}
	if v.MaxInFlight < 1 {
		return errors.New("vault.max_in_flight must be >= 1")
	}
	if u := v.Upsert; u != nil {
		switch strings.ToUpper(u.UpdateType) {
		case "", "UPDATE", "REPLACE":
		default:
			return fmt.Errorf("vault.upsert.update_type must be UPDATE or REPLACE (got %q)", u.UpdateType)
		}
		if len(u.UniqueColumns) == 0 {
			return errors.New("vault.upsert.unique_columns required when upsert is set")
		}
	}
	return nil
}

// CheckVaultURL accepts https URLs, and plain http only when pointed at localhost.
func CheckVaultURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid vault url: %w", err)
	}
	if u.Host == "" {
		return errors.New("invalid vault url: must have host")
	}
	if u.Scheme == "https" {
		return nil
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		host = h
	}
	if host != "localhost" && host != "127.0.0.1" {
		return errors.New("invalid vault url: must have scheme https or point to localhost")
	}
	return nil
}

// Admin exposes /metrics and health probes. Empty Listen disables it.
type Admin struct {
	Listen string `toml:"listen"`
}

type Log struct {
	File  string `toml:"file"`
	Level string `toml:"level"` // debug|info|warn|error
}

func (l Log) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (l Log) validate() error {
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
