package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// DLQRecord pairs a parked message with its position on the dead letter
// topic.
type DLQRecord struct {
	Topic     string
	Partition int
	Offset    int64
	Message   DLQMessage
}

// ListDLQTopics returns every dead letter topic known to the cluster,
// sorted.
func ListDLQTopics(ctx context.Context, brokers []string) ([]string, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}
	seen := map[string]bool{}
	var topics []string
	for _, p := range partitions {
		if !strings.HasSuffix(p.Topic, DLQSuffix) || seen[p.Topic] {
			continue
		}
		seen[p.Topic] = true
		topics = append(topics, p.Topic)
	}
	sort.Strings(topics)
	return topics, nil
}

func inspectReader(brokers []string, topic string, startOffset int64) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "dlq-inspect-" + uuid.NewString(),
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
}

// ViewMessages reads up to limit parked messages from the start of a dead
// letter topic. The caller bounds the read with the context deadline;
// hitting it just ends the listing.
func ViewMessages(ctx context.Context, brokers []string, topic string, limit int) ([]DLQRecord, error) {
	reader := inspectReader(brokers, topic, kafka.FirstOffset)
	defer reader.Close()

	var out []DLQRecord
	for len(out) < limit {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, decodeRecord(msg))
	}
	return out, nil
}

// Monitor tails every dead letter topic, delivering newly parked messages
// to the callback until the context is canceled.
func Monitor(ctx context.Context, brokers []string, onRecord func(DLQRecord)) error {
	topics, err := ListDLQTopics(ctx, brokers)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return errors.New("no dlq topics found")
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			reader := inspectReader(brokers, topic, kafka.LastOffset)
			defer reader.Close()
			for {
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.WithError(err).WithField("topic", topic).Error("monitor read")
					}
					return
				}
				onRecord(decodeRecord(msg))
			}
		}(topic)
	}
	wg.Wait()
	return nil
}

func decodeRecord(msg kafka.Message) DLQRecord {
	rec := DLQRecord{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset}
	if err := sonic.Unmarshal(msg.Value, &rec.Message); err != nil {
		rec.Message = DLQMessage{
			OriginalTopic: strings.TrimSuffix(msg.Topic, DLQSuffix),
			ErrorMessage:  "unparseable dlq payload: " + err.Error(),
			Payload:       msg.Value,
		}
	}
	return rec
}
