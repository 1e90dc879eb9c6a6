package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"profession-sync/domain"
)

// Producer is the write side of the broker, satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
)

// Relay buffers change envelopes and publishes them to the database-changes
// topic in batches, at the size threshold or on a timer, whichever comes
// first. A failed batch goes back to the front of the buffer so delivery is
// at least once and per-key order is preserved.
type Relay struct {
	producer Producer
	topic    string

	batchSize     int
	flushInterval time.Duration

	mu  sync.Mutex
	buf []kafka.Message

	stop chan struct{}
	done chan struct{}
}

func New(p Producer, topic string, batchSize int, flushInterval time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	r := &Relay{
		producer:      p,
		topic:         topic,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Relay) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				log.WithError(err).Error("timed flush")
			}
		case <-r.stop:
			return
		}
	}
}

// HandleChange converts the event to its wire message and buffers it,
// flushing when the batch threshold is reached.
func (r *Relay) HandleChange(ctx context.Context, ev domain.ChangeEvent) error {
	msg, err := r.message(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.buf = append(r.buf, msg)
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()

	if full {
		return r.Flush(ctx)
	}
	return nil
}

func (r *Relay) message(ev domain.ChangeEvent) (kafka.Message, error) {
	env, err := domain.NewEnvelope(ev, time.Now())
	if err != nil {
		return kafka.Message{}, err
	}
	key, err := env.Key()
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := sonic.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Topic: r.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "operation", Value: []byte(env.OperationType)},
			{Key: "database", Value: []byte(env.Database)},
			{Key: "collection", Value: []byte(env.Collection)},
		},
	}, nil
}

// Flush publishes the buffered batch. On failure the batch is re-inserted
// at the front of the buffer, ahead of anything appended meanwhile, and the
// error is returned.
func (r *Relay) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.producer.WriteMessages(ctx, batch...); err != nil {
		r.mu.Lock()
		r.buf = append(batch, r.buf...)
		r.mu.Unlock()
		log.WithError(err).WithField("batch", len(batch)).Error("publish batch")
		return err
	}
	log.WithField("batch", len(batch)).Debug("batch published")
	return nil
}

// Pending reports the number of buffered messages.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Stop halts the flush timer and publishes whatever is still buffered.
func (r *Relay) Stop(ctx context.Context) error {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
	return r.Flush(ctx)
}
