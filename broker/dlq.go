package broker

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"profession-sync/relay"
)

// DLQMessage is the wire shape parked on a dead letter topic. Payload is
// the failed message's value verbatim so it can be replayed.
type DLQMessage struct {
	OriginalTopic     string            `json:"originalTopic"`
	OriginalPartition int               `json:"originalPartition"`
	OriginalOffset    int64             `json:"originalOffset"`
	OriginalKey       string            `json:"originalKey,omitempty"`
	ErrorMessage      string            `json:"errorMessage"`
	Timestamp         time.Time         `json:"timestamp"`
	Payload           []byte            `json:"payload"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// DLQ parks messages that failed processing on a per-topic dead letter
// topic. Parking is best effort: a DLQ publish failure is logged and
// swallowed so a broken DLQ never wedges the consume loop.
type DLQ struct {
	producer relay.Producer
}

func NewDLQ(p relay.Producer) *DLQ {
	return &DLQ{producer: p}
}

// TopicFor returns the dead letter topic for an original topic.
func TopicFor(topic string) string {
	if strings.HasSuffix(topic, DLQSuffix) {
		return topic
	}
	return topic + DLQSuffix
}

// SendToDLQ parks the failed message. Never returns an error.
func (d *DLQ) SendToDLQ(ctx context.Context, cause error, msg kafka.Message, metadata map[string]string) {
	reason := cause.Error()
	dm := DLQMessage{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       string(msg.Key),
		ErrorMessage:      reason,
		Timestamp:         time.Now().UTC(),
		Payload:           msg.Value,
		Metadata:          metadata,
	}
	value, err := sonic.Marshal(dm)
	if err != nil {
		log.WithError(err).Error("encode dlq message")
		return
	}

	key := msg.Key
	if len(key) == 0 {
		key = []byte(uuid.NewString())
	}
	if len(reason) > 100 {
		reason = reason[:100]
	}
	out := kafka.Message{
		Topic: TopicFor(msg.Topic),
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
			{Key: "original-topic", Value: []byte(msg.Topic)},
			{Key: "timestamp", Value: []byte(dm.Timestamp.Format(time.RFC3339))},
		},
	}
	if err := d.producer.WriteMessages(ctx, out); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"topic":  out.Topic,
			"offset": msg.Offset,
		}).Error("publish to dlq")
		return
	}
	log.WithFields(log.Fields{
		"topic":  out.Topic,
		"offset": msg.Offset,
		"reason": reason,
	}).Warn("message parked on dlq")
}

// ProcessWithDLQ runs fn and parks the message on its dead letter topic if
// fn fails. The error is returned for logging; the caller keeps consuming
// either way.
func (d *DLQ) ProcessWithDLQ(ctx context.Context, msg kafka.Message, metadata map[string]string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		d.SendToDLQ(ctx, err, msg, metadata)
	}
	return err
}
