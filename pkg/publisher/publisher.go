// Package publisher writes token events to the destination topic.
package publisher

import (
	"context"
	"fmt"

	"github.com/joeydtaylor/steeze-vault/pkg/codec"
	"github.com/joeydtaylor/steeze-vault/pkg/kafkasec"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-vault/pkg/tokens"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that sends one message per call and waits for
// the configured acks before returning.
func NewKafkaWriter(sink manifest.KafkaSink) (*kafka.Writer, error) {
	tr, err := kafkasec.Transport(sink.Security, sink.ClientID)
	if err != nil {
		return nil, err
	}
	wc := sink.Writer
	if wc == nil {
		wc = &manifest.KafkaWriter{Balancer: "hash", RequiredAcks: "all"}
	}

	var bal kafka.Balancer
	switch wc.Balancer {
	case "murmur2":
		bal = kafka.Murmur2Balancer{}
	case "crc32":
		bal = kafka.CRC32Balancer{}
	case "hash", "":
		bal = &kafka.Hash{}
	default:
		return nil, fmt.Errorf("publisher: unsupported balancer %q", wc.Balancer)
	}

	var acks kafka.RequiredAcks
	switch wc.RequiredAcks {
	case "none":
		acks = kafka.RequireNone
	case "one":
		acks = kafka.RequireOne
	case "all", "":
		acks = kafka.RequireAll
	default:
		return nil, fmt.Errorf("publisher: unsupported required_acks %q", wc.RequiredAcks)
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(sink.Brokers...),
		Topic:        sink.Topic,
		Balancer:     bal,
		BatchSize:    1,
		RequiredAcks: acks,
		WriteTimeout: wc.WriteTimeout(),
		Transport:    tr,
	}, nil
}

type Publisher struct {
	w       MessageWriter
	idField string
	log     *zap.Logger
}

func New(w MessageWriter, idField string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{w: w, idField: idField, log: log.With(zap.String("component", "publisher"))}
}

// Publish sends each event as its own message keyed by the event ID, waiting
// for each send before the next. A failed send is logged and the rest are still
// attempted. It returns how many were published.
func (p *Publisher) Publish(ctx context.Context, events []tokens.Event) int {
	sent := 0
	for _, ev := range events {
		value, err := codec.JSONStrict.Marshal(ev.Payload(p.idField))
		if err != nil {
			metrics.PublisherMessages.WithLabelValues("failed").Inc()
			p.log.Error("encode token event", zap.String("id", ev.ID), zap.Error(err))
			continue
		}
		if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.ID), Value: value}); err != nil {
			metrics.PublisherMessages.WithLabelValues("failed").Inc()
			p.log.Error("publish token event", zap.String("id", ev.ID), zap.Error(err))
			continue
		}
		metrics.PublisherMessages.WithLabelValues("published").Inc()
		sent++
	}
	return sent
}

func (p *Publisher) Close() error { return p.w.Close() }
