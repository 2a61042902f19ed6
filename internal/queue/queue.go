package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mattjoyce/hookq/internal/queue"

// Enqueuer appends authenticated payloads to the configured queue.
//
// Each call makes exactly one append attempt. There is no buffering, batching,
// retry or deduplication; a failed append is reported to the caller.
type Enqueuer struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Enqueuer over store.
func New(store Store, cfg Config, logger *slog.Logger) (*Enqueuer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("queue key is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{
		store:  store,
		cfg:    cfg,
		logger: logger.With("queue", cfg.Key),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Key returns the queue name.
func (e *Enqueuer) Key() string { return e.cfg.Key }

// Encode returns the canonical JSON text stored for payload. Object keys are
// sorted; json.Number values keep their original digits. '<', '>' and '&'
// are written as-is rather than as \u escapes.
func Encode(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Enqueue serializes payload and appends it at the tail of the queue, then
// records the queue depth. The depth is informational: a failing depth query
// is logged and does not fail the enqueue.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any) (Receipt, error) {
	ctx, span := e.tracer.Start(ctx, "queue.enqueue",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination.name", e.cfg.Key)),
	)
	defer span.End()

	entry, err := Encode(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return Receipt{}, err
	}
	span.SetAttributes(attribute.Int("messaging.message.body.size", len(entry)))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.store.Append(ctx, e.cfg.Key, entry); err != nil {
		e.logger.Error("queue append failed", "error", err, "bytes", len(entry))
		span.RecordError(err)
		span.SetStatus(codes.Error, "append")
		return Receipt{}, fmt.Errorf("%w: append: %v", ErrStoreUnavailable, err)
	}

	receipt := Receipt{Bytes: len(entry), Depth: -1}

	depth, err := e.store.Len(ctx, e.cfg.Key)
	if err != nil {
		e.logger.Warn("queue depth unavailable", "error", err)
	} else {
		receipt.Depth = depth
		span.SetAttributes(attribute.Int64("hookq.queue.depth", depth))
	}

	e.logger.Info("queued", "queue_size", receipt.Depth, "bytes", receipt.Bytes)
	return receipt, nil
}

// Depth returns the current queue length.
func (e *Enqueuer) Depth(ctx context.Context) (int64, error) {
	n, err := e.store.Len(ctx, e.cfg.Key)
	if err != nil {
		return 0, fmt.Errorf("%w: len: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Peek returns up to n entries from the head of the queue without removing them.
func (e *Enqueuer) Peek(ctx context.Context, n int64) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := e.store.Range(ctx, e.cfg.Key, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("%w: range: %v", ErrStoreUnavailable, err)
	}
	return entries, nil
}

// Ping checks the queue store is reachable.
func (e *Enqueuer) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}
