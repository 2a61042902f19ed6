package queue

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/hookq/internal/queue Store

// Store is a named, ordered, append-at-tail list shared across processes.
// Implementations hold one long-lived client that is safe for concurrent use.
type Store interface {
	// Append adds entry at the tail of the list named key. It either fully
	// succeeds or leaves the list unchanged.
	Append(ctx context.Context, key string, entry []byte) error

	// Len returns the number of entries currently stored under key.
	Len(ctx context.Context, key string) (int64, error)

	// Range returns entries [start, stop] (inclusive, zero based, negative
	// indexes count from the tail) in insertion order.
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Config controls an Enqueuer.
type Config struct {
	// Key names the queue.
	Key string

	// Timeout bounds one append plus the follow-up depth query.
	Timeout time.Duration
}

// Receipt describes an accepted entry.
type Receipt struct {
	// Bytes is the size of the stored JSON entry.
	Bytes int

	// Depth is the queue length observed right after the append, or -1 when
	// the depth query failed.
	Depth int64
}

var (
	// ErrStoreUnavailable marks transient queue-store failures: connection
	// errors, append errors and timeouts.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrEncode is returned when a payload cannot be serialized to JSON.
	ErrEncode = errors.New("payload is not JSON serializable")
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second
