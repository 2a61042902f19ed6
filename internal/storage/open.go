package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mattjoyce/hookq/internal/queue"
)

// Backend names a queue store implementation.
type Backend string

const (
	BackendRedis     Backend = "redis"
	BackendSQLite    Backend = "sqlite"
	BackendJetStream Backend = "nats"
)

// ParseAddress picks the backend for a queue store address and returns the
// backend-specific target (a URL for redis/nats, a file path for sqlite).
func ParseAddress(addr string) (Backend, string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", "", fmt.Errorf("queue store address is empty")
	}

	switch {
	case strings.HasPrefix(addr, "sqlite://"):
		path := strings.TrimPrefix(addr, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite address %q has no path", addr)
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(addr, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(addr, "file:"), "//")
		if path == "" {
			return "", "", fmt.Errorf("sqlite address %q has no path", addr)
		}
		return BackendSQLite, path, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("parse queue store address: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss":
		return BackendRedis, addr, nil
	case "nats", "tls":
		return BackendJetStream, addr, nil
	default:
		return "", "", fmt.Errorf("unsupported queue store scheme %q (want redis, rediss, nats, sqlite)", u.Scheme)
	}
}

// Open connects to the queue store at addr. The returned store holds one
// long-lived client shared by every request; callers Close it at shutdown.
func Open(ctx context.Context, addr string) (queue.Store, Backend, error) {
	backend, target, err := ParseAddress(addr)
	if err != nil {
		return nil, "", err
	}

	switch backend {
	case BackendRedis:
		s, err := OpenRedis(ctx, target)
		if err != nil {
			return nil, backend, err
		}
		return s, backend, nil
	case BackendJetStream:
		s, err := OpenJetStream(ctx, target)
		if err != nil {
			return nil, backend, err
		}
		return s, backend, nil
	default:
		db, err := OpenSQLite(ctx, target)
		if err != nil {
			return nil, backend, err
		}
		return NewSQLiteStore(db), backend, nil
	}
}

// CheckKey reports whether key can name a queue on backend. Redis and SQLite
// accept any non-empty key.
func CheckKey(backend Backend, key string) error {
	if backend == BackendJetStream {
		return checkStreamKey(key)
	}
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil
}
