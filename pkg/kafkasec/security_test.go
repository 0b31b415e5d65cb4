package kafkasec

import (
	"testing"

	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoSecurity(t *testing.T) {
	d, err := Dialer(nil, "cid")
	require.NoError(t, err)
	assert.Nil(t, d.TLS)
	assert.Nil(t, d.SASLMechanism)
	assert.Equal(t, "cid", d.ClientID)

	tr, err := Transport(&manifest.KafkaSecurity{TLS: &manifest.KafkaTLS{Enable: false}}, "w")
	require.NoError(t, err)
	assert.Nil(t, tr.TLS)
	assert.Nil(t, tr.SASL)
}

func TestMechanisms(t *testing.T) {
	m, err := Mechanism(&manifest.KafkaSASL{Mechanism: "plain", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, plain.Mechanism{Username: "u", Password: "p"}, m)

	for _, name := range []string{"SCRAM-SHA-256", "scram-sha-512"} {
		m, err := Mechanism(&manifest.KafkaSASL{Mechanism: name, Username: "u", Password: "p"})
		require.NoError(t, err)
		assert.NotNil(t, m)
	}

	_, err = Mechanism(&manifest.KafkaSASL{Mechanism: "GSSAPI"})
	assert.Error(t, err)
}

func TestTLSConfig(t *testing.T) {
	cfg, err := TLSConfig(&manifest.KafkaTLS{Enable: true, ServerName: "broker", InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, "broker", cfg.ServerName)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = TLSConfig(&manifest.KafkaTLS{Enable: true, CAFiles: []string{"/definitely/missing/ca.crt"}})
	assert.Error(t, err)
}
