package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mattjoyce/hookq/internal/webhook"

// Guard authenticates event deliveries. Handlers behind it only ever see a
// VerifiedPayload; unauthenticated requests never reach the queue.
type Guard struct {
	signer      *Signer
	header      string
	maxBodySize int64
	tracer      trace.Tracer
}

// NewGuard returns a Guard reading the signature from header and rejecting
// bodies over maxBodySize bytes.
func NewGuard(signer *Signer, header string, maxBodySize int64) *Guard {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Guard{
		signer:      signer,
		header:      header,
		maxBodySize: maxBodySize,
		tracer:      otel.Tracer(tracerName),
	}
}

// Authenticate reads the raw body, verifies its signature and only then
// decodes it as JSON.
func (g *Guard) Authenticate(r *http.Request) (VerifiedPayload, error) {
	_, span := g.tracer.Start(r.Context(), "webhook.authenticate",
		trace.WithAttributes(attribute.String("webhook.algorithm", g.signer.Algorithm().Name)),
	)
	defer span.End()

	fail := func(err error) (VerifiedPayload, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return VerifiedPayload{}, err
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, g.maxBodySize+1))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBodyRead, err))
	}
	if int64(len(body)) > g.maxBodySize {
		return fail(ErrPayloadTooLarge)
	}
	span.SetAttributes(attribute.Int("http.request.body.size", len(body)))

	signature := r.Header.Get(g.header)
	if err := g.signer.Verify(body, signature); err != nil {
		return fail(err)
	}

	if !json.Valid(body) {
		return fail(ErrInvalidPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}

	return VerifiedPayload{Raw: body, Value: value, Signature: signature}, nil
}
