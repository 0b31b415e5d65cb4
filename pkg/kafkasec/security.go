// Package kafkasec turns manifest security blocks into kafka-go dialers and
// transports.
package kafkasec

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

const dialTimeout = 10 * time.Second

// TLSConfig returns nil when TLS is not enabled.
func TLSConfig(t *manifest.KafkaTLS) (*tls.Config, error) {
	if t == nil || !t.Enable {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: t.ServerName}

	if len(t.CAFiles) > 0 {
		pool := x509.NewCertPool()
		for _, f := range t.CAFiles {
			pem, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("kafka tls ca %s: %w", f, err)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("kafka tls ca %s: no certificates found", f)
			}
		}
		cfg.RootCAs = pool
	}
	if t.ClientCert != "" && t.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("kafka tls client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if t.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true // dev only
	}
	return cfg, nil
}

// Mechanism returns nil when SASL is not configured.
func Mechanism(s *manifest.KafkaSASL) (sasl.Mechanism, error) {
	if s == nil || s.Mechanism == "" {
		return nil, nil
	}
	switch strings.ToUpper(s.Mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, errors.New("kafka sasl: unsupported mechanism " + s.Mechanism)
	}
}

func resolve(sec *manifest.KafkaSecurity) (*tls.Config, sasl.Mechanism, error) {
	if sec == nil {
		return nil, nil, nil
	}
	t, err := TLSConfig(sec.TLS)
	if err != nil {
		return nil, nil, err
	}
	m, err := Mechanism(sec.SASL)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

// Dialer is used by the consumer-group reader.
func Dialer(sec *manifest.KafkaSecurity, clientID string) (*kafka.Dialer, error) {
	t, m, err := resolve(sec)
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		ClientID:      clientID,
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           t,
		SASLMechanism: m,
	}, nil
}

// Transport is used by the destination writer.
func Transport(sec *manifest.KafkaSecurity, clientID string) (*kafka.Transport, error) {
	t, m, err := resolve(sec)
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		ClientID:    clientID,
		DialTimeout: dialTimeout,
		TLS:         t,
		SASL:        m,
	}, nil
}
