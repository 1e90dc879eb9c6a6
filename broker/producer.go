package broker

import (
	"github.com/segmentio/kafka-go"
)

// DLQ topics share the original topic's name with this suffix.
const DLQSuffix = ".dlq"

// NewWriter builds the shared Kafka writer. The hash balancer keeps every
// message with the same key on the same partition, which is what preserves
// per-document ordering end to end.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
