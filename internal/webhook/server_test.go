package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mattjoyce/hookq/internal/queue"
)

// mockQueue is an in-memory Queue that records every enqueued entry as
// canonical JSON.
type mockQueue struct {
	mu        sync.Mutex
	entries   [][]byte
	enqueueFn func(ctx context.Context, payload any) (queue.Receipt, error)
	pingErr   error
}

func (m *mockQueue) Enqueue(ctx context.Context, payload any) (queue.Receipt, error) {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, payload)
	}
	entry, err := queue.Encode(payload)
	if err != nil {
		return queue.Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return queue.Receipt{Bytes: len(entry), Depth: int64(len(m.entries))}, nil
}

func (m *mockQueue) Depth(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *mockQueue) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockQueue) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = string(e)
	}
	return out
}

const (
	testSecret = "s3cr3t"
	testToken  = "verify-me"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, mq Queue, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Listen:      "127.0.0.1:0",
		VerifyToken: testToken,
		Secret:      testSecret,
		Algorithm:   "sha1",
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	srv, err := New(cfg, mq, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func signedRequest(body []byte, header string) *http.Request {
	req := httptest.NewRequest("POST", "/whatsapp", bytes.NewReader(body))
	if header != "" {
		req.Header.Set("X-Hub-Signature", header)
	}
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexReturnsEmptyList(t *testing.T) {
	srv := newTestServer(t, &mockQueue{})
	rec := serve(srv, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestSubscriptionHandshake(t *testing.T) {
	srv := newTestServer(t, &mockQueue{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"correct token", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=xyz123", http.StatusOK, "xyz123"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=xyz123", http.StatusBadRequest, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=xyz123", http.StatusBadRequest, ""},
		{"no params", "", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest("GET", "/whatsapp?"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleEvent_ValidSignature(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq)
	body := []byte(`{"object":"whatsapp_business_account"}`)

	rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	got := mq.snapshot()
	if len(got) != 1 || got[0] != `{"object":"whatsapp_business_account"}` {
		t.Errorf("queue = %v", got)
	}
}

func TestHandleEvent_FailClosed(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	digest := computeSHA1(body, testSecret)

	headers := map[string]string{
		"empty header":             "",
		"wrong algorithm token":    "sha256=" + digest,
		"truncated hex":            "sha1=" + digest[:20],
		"right length wrong value": "sha1=" + strings.Repeat("0", 40),
		"wrong secret":             "sha1=" + computeSHA1(body, "other"),
	}

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			mq := &mockQueue{
				enqueueFn: func(ctx context.Context, payload any) (queue.Receipt, error) {
					t.Fatal("Enqueue should not be called with invalid signature")
					return queue.Receipt{}, nil
				},
			}
			srv := newTestServer(t, mq)

			rec := serve(srv, signedRequest(body, header))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if strings.Contains(rec.Body.String(), "whatsapp_business_account") {
				t.Error("response echoes payload")
			}
			if strings.Contains(rec.Body.String(), digest) {
				t.Error("response leaks expected digest")
			}
		})
	}
}

func TestHandleEvent_RepeatedRejectionIsStable(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq)
	body := []byte(`{"a":1}`)
	header := "sha1=" + strings.Repeat("0", 40)

	var first string
	for i := range 5 {
		rec := serve(srv, signedRequest(body, header))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d, want 400", i, rec.Code)
		}
		if i == 0 {
			first = rec.Body.String()
		} else if rec.Body.String() != first {
			t.Fatalf("attempt %d: body = %q, want %q", i, rec.Body.String(), first)
		}
	}
	if n := len(mq.snapshot()); n != 0 {
		t.Errorf("queue has %d entries, want 0", n)
	}
}

func TestHandleEvent_OrderAndCanonicalJSON(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq)

	var want []string
	for i := range 10 {
		body := fmt.Appendf(nil, `{"seq":%d, "z":"last", "a":1.50}`, i)
		rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
		want = append(want, fmt.Sprintf(`{"a":1.50,"seq":%d,"z":"last"}`, i))
	}

	got := mq.snapshot()
	if len(got) != len(want) {
		t.Fatalf("queue has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHandleEvent_InvalidJSON(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq)
	body := []byte("not json")

	rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "invalid payload" {
		t.Errorf("error = %q", resp.Error)
	}
	if len(mq.snapshot()) != 0 {
		t.Error("invalid payload was queued")
	}
}

func TestHandleEvent_BodyTooLarge(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq, func(c *Config) { c.MaxBodySize = 100 })
	body := []byte(`{"data":"` + strings.Repeat("x", 200) + `"}`)

	rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if len(mq.snapshot()) != 0 {
		t.Error("oversized payload was queued")
	}
}

func TestHandleEvent_StoreUnavailable(t *testing.T) {
	calls := 0
	mq := &mockQueue{
		enqueueFn: func(ctx context.Context, payload any) (queue.Receipt, error) {
			calls++
			return queue.Receipt{}, fmt.Errorf("%w: append: connection refused", queue.ErrStoreUnavailable)
		},
	}
	srv := newTestServer(t, mq)
	body := []byte(`{"a":1}`)

	rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if calls != 1 {
		t.Errorf("Enqueue called %d times, want 1", calls)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("response leaks store error")
	}
}

func TestHandleEvent_UnexpectedError(t *testing.T) {
	mq := &mockQueue{
		enqueueFn: func(ctx context.Context, payload any) (queue.Receipt, error) {
			return queue.Receipt{}, fmt.Errorf("boom")
		},
	}
	srv := newTestServer(t, mq)
	body := []byte(`{"a":1}`)

	rec := serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	mq := &mockQueue{entries: [][]byte{[]byte("1"), []byte("2")}}
	srv := newTestServer(t, mq)

	rec := serve(srv, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.QueueSize != 2 {
		t.Errorf("healthz = %+v", resp)
	}

	mq.pingErr = fmt.Errorf("%w: ping: refused", queue.ErrStoreUnavailable)
	rec = serve(srv, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCustomPathAndSHA256(t *testing.T) {
	mq := &mockQueue{}
	srv := newTestServer(t, mq, func(c *Config) {
		c.Path = "/hooks/meta"
		c.Algorithm = "sha256"
	})
	body := []byte(`{"a":1}`)
	signer := mustSigner(t, SHA256, testSecret)

	req := httptest.NewRequest("POST", "/hooks/meta", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signer.Sign(body))
	rec := serve(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = serve(srv, signedRequest(body, "sha1="+computeSHA1(body, testSecret)))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("old path status = %d, want 404", rec.Code)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Secret: "x"}, nil, testLogger()); err == nil {
		t.Error("expected error for nil queue")
	}
	if _, err := New(Config{}, &mockQueue{}, testLogger()); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := New(Config{Secret: "x", Algorithm: "md5"}, &mockQueue{}, testLogger()); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	srv := newTestServer(t, &mockQueue{})

	if srv.config.Path != DefaultPath {
		t.Errorf("Path = %q, want %q", srv.config.Path, DefaultPath)
	}
	if srv.config.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", srv.config.MaxBodySize, DefaultMaxBodySize)
	}
	if srv.config.SignatureHeader != "X-Hub-Signature" {
		t.Errorf("SignatureHeader = %q", srv.config.SignatureHeader)
	}
	if srv.config.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v", srv.config.ReadTimeout)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	srv := newTestServer(t, &mockQueue{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	cancel()

	if err := <-done; err != context.Canceled {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}
