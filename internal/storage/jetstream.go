package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamSubjectPrefix = "hookq"

// JetStreamStore keeps each queue as a file-backed JetStream stream with a
// single subject. An append is acknowledged only once the server has
// persisted the message. Streams use work-queue retention, so a message
// leaves the stream when a consumer acks it and Len counts only entries
// still waiting.
type JetStreamStore struct {
	nc *nats.Conn
	js jetstream.JetStream

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

// OpenJetStream connects to the NATS server at url.
func OpenJetStream(ctx context.Context, url string) (*JetStreamStore, error) {
	nc, err := nats.Connect(url,
		nats.Name("hookq"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	return &JetStreamStore{
		nc:      nc,
		js:      js,
		streams: make(map[string]jetstream.Stream),
	}, nil
}

// ErrInvalidKey is returned for queue keys the backend cannot name a queue
// after without changing them.
var ErrInvalidKey = errors.New("invalid queue key")

// checkStreamKey accepts keys that are usable verbatim as a stream name.
// Keys are never rewritten, so two distinct keys always name two streams.
func checkStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q contains %q (nats queue keys allow letters, digits, '-' and '_')", ErrInvalidKey, key, r)
		}
	}
	return nil
}

func streamSubject(key string) string {
	return streamSubjectPrefix + "." + key
}

func (s *JetStreamStore) stream(ctx context.Context, key string) (jetstream.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[key]; ok {
		return st, nil
	}
	if err := checkStreamKey(key); err != nil {
		return nil, err
	}

	st, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      key,
		Subjects:  []string{streamSubject(key)},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", key, err)
	}
	s.streams[key] = st
	return st, nil
}

func (s *JetStreamStore) Append(ctx context.Context, key string, entry []byte) error {
	if _, err := s.stream(ctx, key); err != nil {
		return err
	}
	if _, err := s.js.Publish(ctx, streamSubject(key), entry); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (s *JetStreamStore) Len(ctx context.Context, key string) (int64, error) {
	st, err := s.stream(ctx, key)
	if err != nil {
		return 0, err
	}
	info, err := st.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info: %w", err)
	}
	return int64(info.State.Msgs), nil
}

func (s *JetStreamStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	st, err := s.stream(ctx, key)
	if err != nil {
		return nil, err
	}
	info, err := st.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}

	offset, limit, ok := normalizeRange(start, stop, int64(info.State.Msgs))
	if !ok {
		return nil, nil
	}

	// Acked or deleted messages leave gaps in the sequence space, so walk
	// live messages on the subject instead of computing sequence numbers.
	subject := streamSubject(key)
	out := make([][]byte, 0, limit)
	seq := info.State.FirstSeq
	for skipped := int64(0); int64(len(out)) < limit; {
		msg, err := st.GetMsg(ctx, seq, jetstream.WithGetMsgSubject(subject))
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("get msg: %w", err)
		}
		seq = msg.Sequence + 1
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, msg.Data)
	}
	return out, nil
}

func (s *JetStreamStore) Ping(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats connection status: %s", s.nc.Status())
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *JetStreamStore) Close() error {
	return s.nc.Drain()
}
