package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"profession-sync/broker"
	"profession-sync/domain"
)

// OnHandled runs after a change was successfully applied. Used by the
// consumer binary for cache refresh and update notifications; failures in
// the hook never fail the message.
type OnHandled func(ctx context.Context, env domain.Envelope, ch domain.Change)

// Registry resolves a collection name to its reconciliation handler,
// satisfied by domain.Orchestrator.
type Registry interface {
	HandlerFor(coll string) (domain.Handler, bool)
}

// Router turns consumed messages into handler invocations. Malformed or
// unroutable messages are dropped with a warning; handler failures park the
// message on the dead letter topic. Neither stops the loop.
type Router struct {
	orch      Registry
	dlq       *broker.DLQ
	tracer    trace.Tracer
	onHandled OnHandled
}

func NewRouter(orch Registry, dlq *broker.DLQ, onHandled OnHandled) *Router {
	return &Router{
		orch:      orch,
		dlq:       dlq,
		tracer:    otel.Tracer("profession-sync/dispatch"),
		onHandled: onHandled,
	}
}

// Handle processes a single consumed message end to end.
func (r *Router) Handle(ctx context.Context, msg kafka.Message) {
	ctx, span := r.tracer.Start(ctx, "dispatch.message")
	defer span.End()

	var env domain.Envelope
	if err := sonic.Unmarshal(msg.Value, &env); err != nil {
		span.SetStatus(codes.Error, "unparseable envelope")
		log.WithError(err).WithField("offset", msg.Offset).Warn("unparseable envelope, dropping")
		return
	}
	span.SetAttributes(
		attribute.String("change.collection", env.Collection),
		attribute.String("change.operation", string(env.OperationType)),
	)
	fields := log.Fields{
		"collection": env.Collection,
		"operation":  env.OperationType,
		"offset":     msg.Offset,
	}

	handler, ok := r.orch.HandlerFor(env.Collection)
	if !ok {
		log.WithFields(fields).Warn("no handler for collection, dropping")
		return
	}
	if !env.OperationType.Actionable() {
		log.WithFields(fields).Warn("non-actionable operation, dropping")
		return
	}

	ch, err := changeFrom(env)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("unusable envelope, dropping")
		return
	}

	metadata := map[string]string{
		"collection": env.Collection,
		"operation":  string(env.OperationType),
	}
	err = r.dlq.ProcessWithDLQ(ctx, msg, metadata, func(ctx context.Context) error {
		return handler.Apply(ctx, ch)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		log.WithFields(fields).WithError(err).Error("handler failed")
		return
	}

	log.WithFields(fields).Debug("change applied")
	if r.onHandled != nil {
		r.onHandled(ctx, env, ch)
	}
}

// changeFrom validates the envelope into the typed payload handlers expect.
// Replace is applied as an update: the handler semantics for a full new
// document are identical.
func changeFrom(env domain.Envelope) (domain.Change, error) {
	op := env.OperationType
	if op == domain.OpReplace {
		op = domain.OpUpdate
	}
	key, err := env.DecodeKey()
	if err != nil {
		return domain.Change{}, err
	}
	ch := domain.Change{Op: op, Key: key}
	if env.OperationType.NeedsFullDocument() {
		if len(env.FullDocument) == 0 {
			return domain.Change{}, fmt.Errorf("%s event without full document", env.OperationType)
		}
		ch.Doc = env.FullDocument
	}
	return ch, nil
}

// Consumer runs the group read loop over the database-changes topic.
type Consumer struct {
	reader *kafka.Reader
	router *Router
}

func NewConsumer(brokers []string, topic, groupID string, router *Router) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		router: router,
	}
}

// Run consumes until the context is canceled. Message-level failures never
// stop the loop; only the reader dying ends it.
func (c *Consumer) Run(ctx context.Context) error {
	log.WithField("topic", c.reader.Config().Topic).Info("consuming database changes")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		c.router.Handle(ctx, msg)
	}
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
