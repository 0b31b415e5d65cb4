// Package stream reads the upstream topic and hands it out as per-partition
// micro-batches of decoded records.
package stream

import "github.com/segmentio/kafka-go"

// Record is one decoded upstream message: field name to value. Records are not
// modified after decoding.
type Record = map[string]any

// Message is the part of an upstream message a Decoder looks at.
type Message struct {
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}

// Partition holds one partition's records for a micro-batch, in offset order.
type Partition struct {
	ID      int
	Records []Record
}

// MicroBatch is everything fetched for one trigger. Partitions are sorted by ID.
type MicroBatch struct {
	Partitions []Partition
	Fetched    int
	Skipped    int

	commit []kafka.Message
}

// Len is the number of decoded records across all partitions.
func (b *MicroBatch) Len() int {
	n := 0
	for _, p := range b.Partitions {
		n += len(p.Records)
	}
	return n
}

func (b *MicroBatch) Empty() bool { return b == nil || b.Fetched == 0 }
