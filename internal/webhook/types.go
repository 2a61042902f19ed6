package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/hookq/internal/queue"
)

// Queue accepts authenticated payloads. *queue.Enqueuer satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, payload any) (queue.Receipt, error)
	Depth(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Config holds webhook server configuration.
type Config struct {
	// Listen is the host:port the server binds to.
	Listen string

	// Path serves the subscription handshake (GET) and events (POST).
	Path string

	// VerifyToken must match hub.verify_token during the handshake.
	VerifyToken string

	// Secret is the HMAC key shared with the provider.
	Secret string

	// Algorithm is "sha1" or "sha256".
	Algorithm string

	// SignatureHeader carries "<algorithm>=<hex digest>".
	SignatureHeader string

	// MaxBodySize is the maximum accepted request body in bytes.
	MaxBodySize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// VerifiedPayload is an event body whose signature has been checked and whose
// JSON has been decoded. It is only produced by Guard.Authenticate.
type VerifiedPayload struct {
	// Raw is the exact byte sequence the signature was computed over.
	Raw []byte

	// Value is the decoded JSON document. Numbers are json.Number.
	Value any

	// Signature is the header value that matched.
	Signature string
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	QueueSize int64  `json:"queue_size"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultPath         = "/whatsapp"
	DefaultMaxBodySize  = 1048576 // 1 MB
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
	shutdownTimeout     = 5 * time.Second
)
