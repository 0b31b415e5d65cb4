package stream

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/kafkasec"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source yields micro-batches and takes them back for commit once processed.
type Source interface {
	Next(ctx context.Context) (*MicroBatch, error)
	Commit(ctx context.Context, b *MicroBatch) error
	Close() error
}

// Fetcher is the slice of *kafka.Reader the source drives.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource forms a micro-batch from whatever arrives within one trigger
// interval, capped at maxRecords messages.
type KafkaSource struct {
	r          Fetcher
	decode     Decoder
	trigger    time.Duration
	maxRecords int
	log        *zap.Logger

	// deferred holds a fetch error hit after part of a batch was already read.
	deferred error
}

// NewKafkaReader builds the consumer-group reader for src. Offsets are committed
// explicitly by the runner, never in the background.
func NewKafkaReader(src manifest.KafkaSource) (*kafka.Reader, error) {
	dialer, err := kafkasec.Dialer(src.Security, src.GroupID)
	if err != nil {
		return nil, err
	}
	start := kafka.LastOffset
	if strings.EqualFold(src.StartingOffset, "earliest") {
		start = kafka.FirstOffset
	}
	cfg := kafka.ReaderConfig{
		Brokers:     src.Brokers,
		GroupID:     src.GroupID,
		Topic:       src.Topic,
		Dialer:      dialer,
		StartOffset: start,
		MinBytes:    src.MinBytes,
		MaxBytes:    src.MaxBytes,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return kafka.NewReader(cfg), nil
}

func NewKafkaSource(r Fetcher, decode Decoder, p manifest.Pipeline, log *zap.Logger) *KafkaSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSource{
		r:          r,
		decode:     decode,
		trigger:    p.TriggerInterval(),
		maxRecords: p.MaxRecordsPerTrigger,
		log:        log.With(zap.String("component", "source")),
	}
}

// Next blocks for at most one trigger interval. A trigger with no traffic yields
// an empty batch. Undecodable messages are skipped but still committed. A fetch
// error after some messages were read ends the batch early; the error is
// returned by the following call so the messages already read are dispatched.
func (s *KafkaSource) Next(ctx context.Context) (*MicroBatch, error) {
	if err := s.deferred; err != nil {
		s.deferred = nil
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.trigger)
	defer cancel()

	b := &MicroBatch{}
	byPartition := map[int][]Record{}
	for b.Fetched < s.maxRecords {
		msg, err := s.r.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if b.Fetched > 0 {
				s.log.Warn("fetch failed mid-trigger; closing batch early",
					zap.Int("fetched", b.Fetched), zap.Error(err))
				s.deferred = err
				break
			}
			return nil, err
		}
		b.Fetched++
		b.commit = append(b.commit, msg)

		rec, err := s.decode(Message{Partition: msg.Partition, Offset: msg.Offset, Key: msg.Key, Value: msg.Value})
		if err != nil {
			b.Skipped++
			metrics.StreamRecords.WithLabelValues("skipped").Inc()
			s.log.Warn("skipping undecodable message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		metrics.StreamRecords.WithLabelValues("decoded").Inc()
		byPartition[msg.Partition] = append(byPartition[msg.Partition], rec)
	}

	for id, recs := range byPartition {
		b.Partitions = append(b.Partitions, Partition{ID: id, Records: recs})
	}
	sort.Slice(b.Partitions, func(i, j int) bool { return b.Partitions[i].ID < b.Partitions[j].ID })
	return b, nil
}

// Commit acknowledges every message fetched into b, including skipped ones.
func (s *KafkaSource) Commit(ctx context.Context, b *MicroBatch) error {
	if b.Empty() {
		return nil
	}
	return s.r.CommitMessages(ctx, b.commit...)
}

func (s *KafkaSource) Close() error { return s.r.Close() }
