package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookq/internal/log"
	"github.com/mattjoyce/hookq/internal/queue/mocks"
)

// memStore is an in-memory Store used to check ordering end to end.
type memStore struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

func newMemStore() *memStore {
	return &memStore{lists: make(map[string][][]byte)}
}

func (m *memStore) Append(_ context.Context, key string, entry []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], append([]byte(nil), entry...))
	return nil
}

func (m *memStore) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *memStore) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if stop < 0 || stop >= int64(len(l)) {
		stop = int64(len(l)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return l[start : stop+1], nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error              { return nil }

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Key: "k"}, log.Discard())
	assert.Error(t, err)

	_, err = New(newMemStore(), Config{}, log.Discard())
	assert.Error(t, err)

	e, err := New(newMemStore(), Config{Key: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, e.cfg.Timeout)
	assert.Equal(t, "k", e.Key())
}

func TestEnqueueAppendsCanonicalJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Append(gomock.Any(), "whatsapp", []byte(`{"a":1,"b":"x"}`)).Return(nil),
		store.EXPECT().Len(gomock.Any(), "whatsapp").Return(int64(7), nil),
	)

	e, err := New(store, Config{Key: "whatsapp"}, log.Discard())
	require.NoError(t, err)

	receipt, err := e.Enqueue(context.Background(), map[string]any{"b": "x", "a": json.Number("1")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), receipt.Depth)
	assert.Equal(t, len(`{"a":1,"b":"x"}`), receipt.Bytes)
}

func TestEnqueueAppendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	// Exactly one attempt, and no depth query after a failed append.
	store.EXPECT().Append(gomock.Any(), "q", gomock.Any()).Return(errors.New("connection refused")).Times(1)

	e, err := New(store, Config{Key: "q"}, log.Discard())
	require.NoError(t, err)

	_, err = e.Enqueue(context.Background(), map[string]any{"a": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnqueueDepthFailureStillSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().Append(gomock.Any(), "q", gomock.Any()).Return(nil)
	store.EXPECT().Len(gomock.Any(), "q").Return(int64(0), errors.New("timeout"))

	e, err := New(store, Config{Key: "q"}, log.Discard())
	require.NoError(t, err)

	receipt, err := e.Enqueue(context.Background(), []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), receipt.Depth)
}

func TestEnqueueUnencodablePayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	e, err := New(store, Config{Key: "q"}, log.Discard())
	require.NoError(t, err)

	_, err = e.Enqueue(context.Background(), map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrEncode)
}

func TestEnqueueAppliesTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().Append(gomock.Any(), "q", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ []byte) error {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("append context has no deadline")
			}
			if time.Until(deadline) > 50*time.Millisecond {
				t.Errorf("deadline too far: %v", time.Until(deadline))
			}
			<-ctx.Done()
			return ctx.Err()
		})

	e, err := New(store, Config{Key: "q", Timeout: 20 * time.Millisecond}, log.Discard())
	require.NoError(t, err)

	_, err = e.Enqueue(context.Background(), "payload")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestEnqueuePreservesSubmissionOrder(t *testing.T) {
	store := newMemStore()
	e, err := New(store, Config{Key: "ordered"}, log.Discard())
	require.NoError(t, err)

	const n = 25
	for i := range n {
		receipt, err := e.Enqueue(context.Background(), map[string]any{"seq": i})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), receipt.Depth)
	}

	entries, err := e.Peek(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf(`{"seq":%d}`, i), string(entry))
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	var v any
	dec := json.NewDecoder(strings.NewReader(`{"z":1.50,"a":{"y":true,"b":null}}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v))

	b, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":null,"y":true},"z":1.50}`, string(b))
}

func TestEncodeKeepsHTMLCharacters(t *testing.T) {
	var v any
	dec := json.NewDecoder(strings.NewReader(`{"text":"a<b & c>d"}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v))

	b, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"a<b & c>d"}`, string(b))
}

func TestDepthAndPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().Len(gomock.Any(), "q").Return(int64(3), nil)
	store.EXPECT().Ping(gomock.Any()).Return(errors.New("down"))

	e, err := New(store, Config{Key: "q"}, log.Discard())
	require.NoError(t, err)

	depth, err := e.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)

	assert.ErrorIs(t, e.Ping(context.Background()), ErrStoreUnavailable)
}

func TestPeekNonPositive(t *testing.T) {
	e, err := New(newMemStore(), Config{Key: "q"}, log.Discard())
	require.NoError(t, err)

	entries, err := e.Peek(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, entries)
}
