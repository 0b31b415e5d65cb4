package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KafkaSource is the upstream topic, consumed through a consumer group.
type KafkaSource struct {
	Brokers []string `toml:"brokers"` // e.g., ["127.0.0.1:19092"]
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"` // default: "steeze-vault"

	// "earliest" | "latest" (default). Only applies when the group has no committed offset.
	StartingOffset string `toml:"starting_offset"`

	// Payload decoding
	Format    MessageFormat `toml:"format"`     // "bytes" (default) | "json"
	SchemaURL string        `toml:"schema_url"` // required for json; path | env:NAME | s3://bucket/key

	MinBytes int `toml:"min_bytes"`
	MaxBytes int `toml:"max_bytes"`

	Security *KafkaSecurity `toml:"security"`
}

func (s KafkaSource) validate() error {
	if len(s.Brokers) == 0 || strings.TrimSpace(s.Topic) == "" {
		return errors.New("source: brokers and topic are required")
	}
	switch s.Format {
	case FormatBytes:
	case FormatJSON:
		if strings.TrimSpace(s.SchemaURL) == "" {
			return errors.New("source.schema_url is required for json format messages")
		}
	default:
		return fmt.Errorf("source.format must be bytes or json (got %q)", s.Format)
	}
	if s.MinBytes < 0 || s.MaxBytes < s.MinBytes {
		return fmt.Errorf("source: min_bytes (%d) must be >= 0 and <= max_bytes (%d)", s.MinBytes, s.MaxBytes)
	}
	switch strings.ToLower(s.StartingOffset) {
	case "earliest", "latest":
	default:
		return fmt.Errorf("source.starting_offset must be earliest or latest (got %q)", s.StartingOffset)
	}
	return s.Security.validate("source")
}

// KafkaSink is the destination topic for token events.
type KafkaSink struct {
	Brokers []string `toml:"brokers"` // defaults to source.brokers
	Topic   string   `toml:"topic"`

	// kafka-go writer tuning
	Writer *KafkaWriter `toml:"writer"`

	// Security
	Security *KafkaSecurity `toml:"security"`

	// Client identity
	ClientID string `toml:"client_id"` // default: "steeze-vault-writer"
}

func (s KafkaSink) validate() error {
	if len(s.Brokers) == 0 || strings.TrimSpace(s.Topic) == "" {
		return errors.New("sink: brokers and topic are required")
	}
	if w := s.Writer; w != nil {
		switch w.Balancer {
		case "hash", "murmur2", "crc32":
		default:
			// Key affinity is what keeps one record's tokens on one partition.
			return fmt.Errorf("sink.writer.balancer must be a key-hashing balancer (hash|murmur2|crc32), got %q", w.Balancer)
		}
		switch w.RequiredAcks {
		case "none", "one", "all":
		default:
			return fmt.Errorf("sink.writer.required_acks must be none, one, or all (got %q)", w.RequiredAcks)
		}
	}
	return s.Security.validate("sink")
}

type KafkaWriter struct {
	Balancer       string `toml:"balancer"`         // "hash"(def) | "murmur2" | "crc32"
	RequiredAcks   string `toml:"required_acks"`    // "all"(def) | "one" | "none"
	WriteTimeoutMS int    `toml:"write_timeout_ms"` // default: 10000
}

func (w KafkaWriter) WriteTimeout() time.Duration {
	return time.Duration(w.WriteTimeoutMS) * time.Millisecond
}

type KafkaSecurity struct {
	TLS  *KafkaTLS  `toml:"tls"`
	SASL *KafkaSASL `toml:"sasl"`
}

type KafkaTLS struct {
	Enable             bool     `toml:"enable"`
	CAFiles            []string `toml:"ca_files"`
	ServerName         string   `toml:"server_name"`
	InsecureSkipVerify bool     `toml:"insecure_skip_tls_verify"`
	ClientCert         string   `toml:"client_cert"`
	ClientKey          string   `toml:"client_key"`
}

type KafkaSASL struct {
	Mechanism string `toml:"mechanism"` // "SCRAM-SHA-256" | "SCRAM-SHA-512" | "PLAIN"
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

func (s *KafkaSecurity) validate(where string) error {
	if s == nil {
		return nil
	}
	if t := s.TLS; t != nil && t.Enable {
		if (t.ClientCert == "") != (t.ClientKey == "") {
			return fmt.Errorf("%s.security.tls: client_cert and client_key must be set together", where)
		}
	}
	if a := s.SASL; a != nil && a.Mechanism != "" {
		switch strings.ToUpper(a.Mechanism) {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("%s.security.sasl.mechanism unsupported: %q", where, a.Mechanism)
		}
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("%s.security.sasl: username and password required", where)
		}
	}
	return nil
}
